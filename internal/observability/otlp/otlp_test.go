package otlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestParseProtocol(t *testing.T) {
	cases := map[string]Protocol{
		"":              GRPC,
		"gRPC":          GRPC,
		"grpc/protobuf": GRPC,
		" http ":        HTTP,
		"http/protobuf": HTTP,
	}
	for raw, want := range cases {
		got, err := ParseProtocol(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseProtocol("http/json")
	assert.Error(t, err)
}

func TestResourceDefaultsServiceName(t *testing.T) {
	res, err := Resource(context.Background(), Service{Environment: "test"})
	require.NoError(t, err)

	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "quoteflow", name.AsString())

	env, ok := res.Set().Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	assert.Equal(t, "test", env.AsString())
}
