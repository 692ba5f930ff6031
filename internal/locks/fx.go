package locks

import (
	"strings"

	"github.com/perkforge/couponvault/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewFromConfig builds a Locker when a redis address is configured.
// Single-instance deployments run without one; the in-process token mutex
// and the database compare-and-swap still guarantee serialization.
func NewFromConfig(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return NewLocker(client)
}

var Module = fx.Module("locks",
	fx.Provide(NewFromConfig),
)
