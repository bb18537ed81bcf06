package identity

import (
	"github.com/smallbiznis/quoteflow/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(service.NewService),
)
