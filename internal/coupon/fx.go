package coupon

import (
	"github.com/perkforge/couponvault/internal/coupon/repository"
	"github.com/perkforge/couponvault/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
