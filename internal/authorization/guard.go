package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
)

// Require checks the actor carried by ctx against the active business and
// returns both on success. A missing actor is ErrInvalidActor.
func Require(ctx context.Context, svc Service, object string, action string) (identitydomain.Actor, snowflake.ID, error) {
	actor, ok := identitydomain.ActorFromContext(ctx)
	if !ok {
		return identitydomain.Actor{}, 0, ErrInvalidActor
	}
	businessID, ok := businesscontext.BusinessIDFromContext(ctx)
	if !ok {
		return actor, 0, ErrInvalidBusiness
	}
	if svc == nil {
		return actor, businessID, ErrForbidden
	}
	if err := svc.Authorize(ctx, actor.Subject(), businessID.String(), object, action); err != nil {
		return actor, businessID, err
	}
	return actor, businessID, nil
}
