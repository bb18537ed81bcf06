// Package otlp holds the pieces the trace and metric exporters share: the
// wire protocol choice and the service resource.
package otlp

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

type Protocol string

const (
	GRPC Protocol = "grpc"
	HTTP Protocol = "http"
)

// ParseProtocol accepts the OTEL_EXPORTER_OTLP_PROTOCOL spellings. Empty
// means gRPC.
func ParseProtocol(raw string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "grpc", "grpc/protobuf":
		return GRPC, nil
	case "http", "http/protobuf":
		return HTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q", raw)
	}
}

// Service identifies the process on exported telemetry.
type Service struct {
	Name        string
	Version     string
	Environment string
}

func Resource(ctx context.Context, svc Service) (*resource.Resource, error) {
	name := strings.TrimSpace(svc.Name)
	if name == "" {
		name = "quoteflow"
	}
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", strings.TrimSpace(svc.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(svc.Environment)),
		),
		resource.WithHost(),
		resource.WithProcessRuntimeVersion(),
	)
}
