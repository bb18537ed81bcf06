package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	auditcontext "github.com/smallbiznis/quoteflow/internal/auditcontext"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	obscontext "github.com/smallbiznis/quoteflow/internal/observability/context"
	obslogger "github.com/smallbiznis/quoteflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"go.uber.org/zap"
)

const actorName = "scheduler"

// run tallies one execution of a job for its summary log line.
type run struct {
	job       string
	id        string
	startedAt time.Time

	processed int
	skipped   int
	failed    int
}

type runKey struct{}

func runFromContext(ctx context.Context) *run {
	r, _ := ctx.Value(runKey{}).(*run)
	return r
}

// beginRun attaches a run to ctx unless one is already there. The returned
// bool is true for the caller that created the run and must finish it.
func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *run, bool) {
	if r := runFromContext(ctx); r != nil {
		return ctx, r, false
	}
	r := &run{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, runKey{}, r)
	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), actorName)
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), actorName)

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return ctx, r, true
}

func (s *Scheduler) finishRun(ctx context.Context, r *run) {
	fields := []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.Int64("duration_ms", s.clock.Now().Sub(r.startedAt).Milliseconds()),
		zap.Int("processed", r.processed),
		zap.Int("skipped", r.skipped),
		zap.Int("failed", r.failed),
	}
	if r.failed > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) reportFailure(ctx context.Context, r *run, event string, err error, fields ...zap.Field) {
	r.failed++
	fields = append(fields,
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.String("reason", obsmetrics.FailureReason(err)),
		zap.Bool("retryable", obsmetrics.Retryable(err)),
		zap.Error(err),
	)
	s.logger(ctx).Error(event, fields...)
}

// actAs scopes ctx to businessID with the system actor, the way the API
// middleware scopes a member's request.
func actAs(ctx context.Context, businessID snowflake.ID) context.Context {
	ctx = identitydomain.WithActor(ctx, identitydomain.Actor{Type: identitydomain.ActorTypeSystem})
	ctx = businesscontext.WithBusinessID(ctx, businessID)
	return obscontext.WithBusinessID(ctx, businessID.String())
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
