package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
)

const (
	TargetQuote         = "quote"
	TargetInvoice       = "invoice"
	TargetAuthorization = "authorization"
)

// Entry is one change to record. An empty ActorType is taken from the
// request context, and falls back to system when the context has none.
type Entry struct {
	BusinessID snowflake.ID
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	BusinessID snowflake.ID
	Action     string
	TargetType string
	TargetID   string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidBusiness  = errors.New("invalid_business")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
