package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/audit/masking"
	auditcontext "github.com/smallbiznis/quoteflow/internal/auditcontext"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends one audit row. Personal data in metadata is masked and the
// request id, client address and user agent are taken from ctx.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := strings.TrimSpace(entry.ActorType), strings.TrimSpace(entry.ActorID)
	if actorType == "" {
		actorType, actorID = auditcontext.ActorFromContext(ctx)
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	metadata := masking.MaskSensitive(entry.Metadata)
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(metadata),
		IPAddress:  optional(auditcontext.IPAddressFromContext(ctx)),
		UserAgent:  optional(auditcontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.clock.Now(),
	}
	if entry.BusinessID != 0 {
		businessID := entry.BusinessID
		row.BusinessID = &businessID
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("audit insert failed", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.BusinessID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidBusiness
	}

	filter := auditdomain.ListFilter{
		BusinessID: req.BusinessID,
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
		TargetID:   strings.TrimSpace(req.TargetID),
		Limit:      req.Size(),
	}
	if req.PageToken != "" {
		after, err := decodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, err
		}
		filter.After = &after
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	rows, pageInfo := pagination.Page(rows, filter.Limit, func(row *auditdomain.AuditLog) pagination.Cursor {
		return pagination.NewCursor(row.ID.String(), row.CreatedAt)
	})

	logs := make([]auditdomain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, *row)
	}
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func decodeCursor(token string) (auditdomain.Cursor, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return auditdomain.Cursor{}, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := cursor.Time()
	if err != nil {
		return auditdomain.Cursor{}, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil || id == 0 {
		return auditdomain.Cursor{}, auditdomain.ErrInvalidPageToken
	}
	return auditdomain.Cursor{ID: id, CreatedAt: createdAt}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
