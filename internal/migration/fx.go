package migration

import (
	"github.com/perkforge/couponvault/internal/config"
	coupondomain "github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/internal/events"
	merchantdomain "github.com/perkforge/couponvault/internal/merchant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned SQL migrations target postgres. Other dialects
			// (sqlite for local work, mysql) rely on the model schema.
			return conn.AutoMigrate(
				&merchantdomain.Merchant{},
				&coupondomain.Coupon{},
				&coupondomain.CouponCounter{},
				&events.CouponEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
