package audit

import (
	"github.com/smallbiznis/quoteflow/internal/audit/repository"
	"github.com/smallbiznis/quoteflow/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
