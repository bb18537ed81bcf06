package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobMarkOverdue = "mark_overdue"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config            `optional:"true"`
	MetricsCfg obsmetrics.Config `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs of the document pipeline.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	metrics    *obsmetrics.SchedulerMetrics
}

type job struct {
	name string
	fn   func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.InvoiceSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		metrics:    obsmetrics.Scheduler(p.MetricsCfg),
	}, nil
}

func (s *Scheduler) jobs() []job {
	all := []job{
		{name: jobMarkOverdue, fn: s.MarkOverdueInvoicesJob},
	}
	if len(s.cfg.EnabledJobs) == 0 {
		return all
	}
	enabled := all[:0]
	for _, j := range all {
		if slices.ContainsFunc(s.cfg.EnabledJobs, func(name string) bool {
			return strings.EqualFold(strings.TrimSpace(name), j.name)
		}) {
			enabled = append(enabled, j)
		}
	}
	return enabled
}

// RunOnce executes every enabled job once, in order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, j := range s.jobs() {
		if err := s.execute(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// execute bounds j by the job timeout. Running out of time is not an error:
// the job stops between items and the next tick resumes the work.
func (s *Scheduler) execute(parent context.Context, j job) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := j.fn(ctx)
	s.metrics.ObserveRun(j.name, s.clock.Now().Sub(start), err)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.log.Warn("scheduler.job.timeout",
			zap.String("job", j.name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	default:
		return fmt.Errorf("%s: %w", j.name, err)
	}
}

// Run ticks every RunInterval until ctx is cancelled. The first pass starts
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
