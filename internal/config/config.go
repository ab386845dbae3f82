// Package config loads application settings from an optional yaml file and
// the environment, with sane defaults for local development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	LogLevel       string   `mapstructure:"log_level"`

	// StoreURL selects the key/value backend: redis://host:port/db for
	// the networked store, memory:// for the single-process fallback.
	StoreURL string `mapstructure:"store_url"`

	RoomTTL     time.Duration `mapstructure:"room_ttl"`
	DebounceTTL time.Duration `mapstructure:"debounce_ttl"`
	CreateTTL   time.Duration `mapstructure:"create_lock_ttl"`
	LeaveGrace  time.Duration `mapstructure:"leave_grace"`

	ReclaimInterval     time.Duration `mapstructure:"reclaim_interval"`
	ReclaimMinAge       time.Duration `mapstructure:"reclaim_min_age"`
	ReclaimStaleAfter   time.Duration `mapstructure:"reclaim_stale_after"`
	ReclaimHardTimeout  time.Duration `mapstructure:"reclaim_hard_timeout"`
	ReclaimClosingGrace time.Duration `mapstructure:"reclaim_closing_grace"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log_level", "info")
	v.SetDefault("store_url", "memory://")
	v.SetDefault("room_ttl", "1h")
	v.SetDefault("debounce_ttl", "10s")
	v.SetDefault("create_lock_ttl", "30s")
	v.SetDefault("leave_grace", "15m")
	v.SetDefault("reclaim_interval", "1m")
	v.SetDefault("reclaim_min_age", "10m")
	v.SetDefault("reclaim_stale_after", "6h")
	v.SetDefault("reclaim_hard_timeout", "2h")
	v.SetDefault("reclaim_closing_grace", "2m")

	v.SetEnvPrefix("RIFTTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Str("env", env).Msg("no config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
