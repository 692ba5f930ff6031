package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DispatchConfig tunes the outbox event dispatcher. It is operational
// tuning only and never affects ledger semantics.
type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	BatchSize    int           `mapstructure:"batchSize"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		MaxAttempts:  5,
	}
}

// DispatchConfigHolder exposes the current dispatcher tuning and hot-reloads
// it from an optional config file.
type DispatchConfigHolder struct {
	current atomic.Value // holds DispatchConfig
}

func NewDispatchConfigHolder() (*DispatchConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dispatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/couponvault/config") // Volume-mounted config
	v.AddConfigPath("/etc/couponvault")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("COUPONVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDispatchConfig()
	v.SetDefault("dispatch.pollInterval", defaults.PollInterval)
	v.SetDefault("dispatch.batchSize", defaults.BatchSize)
	v.SetDefault("dispatch.maxAttempts", defaults.MaxAttempts)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg DispatchConfig
	if err := v.UnmarshalKey("dispatch", &cfg); err != nil {
		return nil, err
	}
	if err := validateDispatchConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DispatchConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DispatchConfig
		if err := v.UnmarshalKey("dispatch", &updated); err != nil {
			log.Printf("[dispatch-config] reload failed: %v", err)
			return
		}
		if err := validateDispatchConfig(updated); err != nil {
			log.Printf("[dispatch-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[dispatch-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DispatchConfigHolder) Current() DispatchConfig {
	if h == nil {
		return DefaultDispatchConfig()
	}
	cfg, ok := h.current.Load().(DispatchConfig)
	if !ok {
		return DefaultDispatchConfig()
	}
	return cfg
}

func validateDispatchConfig(cfg DispatchConfig) error {
	if cfg.PollInterval <= 0 {
		return errors.New("dispatch poll interval must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("dispatch batch size must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("dispatch max attempts must be positive")
	}
	return nil
}
