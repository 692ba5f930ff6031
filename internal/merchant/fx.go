package merchant

import (
	"github.com/perkforge/couponvault/internal/merchant/repository"
	"github.com/perkforge/couponvault/internal/merchant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("merchant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
