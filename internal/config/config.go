// Package config is the server's startup configuration: listen
// address, worker pool size, price-limit fractions, and depth-cache
// tuning, read entirely from FENRIR_* environment variables over a set
// of defaults (no config file — that loading path is out of scope).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level server configuration.
type Config struct {
	Listen  ListenConfig  `mapstructure:"listen"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ListenConfig is the TCP transport's bind address and worker pool size.
type ListenConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
}

// LimitsConfig configures how far a LIMIT/AON/FOK price may stray from
// a market's reference prices before it is rejected.
type LimitsConfig struct {
	LastPriceFraction    string `mapstructure:"last_price_fraction"`
	ClosingPriceFraction string `mapstructure:"closing_price_fraction"`
}

// CacheConfig tunes the depth-query cache.
type CacheConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// defaults is applied before the environment is read,
// so a bare FENRIR_* env-only deployment still has a sane baseline.
func defaults(v *viper.Viper) {
	v.SetDefault("listen.address", "0.0.0.0")
	v.SetDefault("listen.port", 9009)
	v.SetDefault("listen.workers", 16)
	v.SetDefault("limits.last_price_fraction", "0.1")
	v.SetDefault("limits.closing_price_fraction", "0.1")
	v.SetDefault("cache.timeout", time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads config from FENRIR_* environment variables over the
// defaults above, e.g. FENRIR_LISTEN_PORT=9100.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FENRIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	// Viper only picks up an env var for a key once something has
	// queried or bound that key; Unmarshal alone won't trigger the
	// lookup for nested struct fields, so bind every key explicitly.
	for _, key := range []string{
		"listen.address", "listen.port", "listen.workers",
		"limits.last_price_fraction", "limits.closing_price_fraction",
		"cache.timeout", "logging.level", "logging.format",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges that would otherwise surface as
// confusing failures deep in the matching engine.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port out of range: %d", c.Listen.Port)
	}
	if c.Listen.Workers <= 0 {
		return fmt.Errorf("config: listen.workers must be positive")
	}
	if c.Cache.Timeout <= 0 {
		return fmt.Errorf("config: cache.timeout must be positive")
	}
	return nil
}
