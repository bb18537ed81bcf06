package businesscontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// BusinessContextKey is the request context key for the active business ID.
type BusinessContextKey struct{}

// WithBusinessID stores the active business in the context.
func WithBusinessID(ctx context.Context, businessID snowflake.ID) context.Context {
	return context.WithValue(ctx, BusinessContextKey{}, businessID)
}

// BusinessIDFromContext returns the active business, if one was resolved.
func BusinessIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	value, ok := ctx.Value(BusinessContextKey{}).(snowflake.ID)
	if !ok || value == 0 {
		return 0, false
	}
	return value, true
}
