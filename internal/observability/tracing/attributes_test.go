package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("invoice.id", "1"),
		attribute.String("http.authorization", "Bearer x"),
		attribute.String("client.email", "a@b.c"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("invoice.id"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("password=hunter2"))
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Nil(t, SafeError(nil))
}
