package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithBusinessID(ctx, "77")
	ctx = WithActor(ctx, "user", "9")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "77", BusinessIDFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "9", actorID)
}

func TestEmptyValuesAreNotStored(t *testing.T) {
	ctx := WithBusinessID(context.Background(), "")
	assert.Empty(t, BusinessIDFromContext(ctx))
}
