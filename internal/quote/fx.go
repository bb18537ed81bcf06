package quote

import (
	"github.com/smallbiznis/quoteflow/internal/quote/repository"
	"github.com/smallbiznis/quoteflow/internal/quote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quote.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
