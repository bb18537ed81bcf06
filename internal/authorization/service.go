package authorization

import "context"

// Service answers whether an actor may perform an action on an object
// within a business. It returns nil, ErrForbidden or ErrInvalidActor.
type Service interface {
	Authorize(ctx context.Context, actor string, businessID string, object string, action string) error
}
