package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	Type   string
	UserID snowflake.ID
}

// Subject renders the actor the way the authorization service expects it.
func (a Actor) Subject() string {
	if a.Type == ActorTypeSystem {
		return "system"
	}
	return fmt.Sprintf("user:%s", a.UserID.String())
}

func (a Actor) IDString() string {
	if a.Type == ActorTypeSystem {
		return ""
	}
	return a.UserID.String()
}

type Service interface {
	ResolveToken(ctx context.Context, rawToken string) (Actor, error)
	Memberships(ctx context.Context, userID snowflake.ID) ([]BusinessMember, error)
}

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrNoBusiness   = errors.New("no_business_membership")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.Type == "" {
		return Actor{}, false
	}
	return actor, true
}

// HashToken returns the hex SHA-256 digest used to look tokens up.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
