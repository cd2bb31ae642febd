package invoice

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/invoicing/internal/invoice/service"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.NewService),
)
