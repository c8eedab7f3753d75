// Package config loads hyperdash settings from a YAML file, the environment
// and command-line flags.
//
// Precedence, highest first: flags bound to the viper instance, HYPERDASH_*
// environment variables, the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/roach88/hyperdash/internal/workflow"
)

// EnvPrefix prefixes environment overrides: api.base_url is read from
// HYPERDASH_API_BASE_URL.
const EnvPrefix = "HYPERDASH"

// Config holds the configuration for the application.
type Config struct {
	API struct {
		BaseURL string        `mapstructure:"base_url" validate:"required,url"`
		Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"api"`

	Poll struct {
		Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
		Pace     time.Duration `mapstructure:"pace" validate:"gte=0"`
		Backfill bool          `mapstructure:"backfill"`
	} `mapstructure:"poll"`

	Server struct {
		Addr string `mapstructure:"addr" validate:"required"`
	} `mapstructure:"server"`

	Metrics struct {
		// Addr is where watch serves /metrics; empty disables it.
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Log struct {
		Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
		Format string `mapstructure:"format" validate:"oneof=text json"`
	} `mapstructure:"log"`

	Journal struct {
		// Path of the SQLite journal; empty disables journaling.
		Path string `mapstructure:"path"`
	} `mapstructure:"journal"`

	// Workflows are the transitions the trigger server and step command can
	// run. Empty means AccountPending only.
	Workflows []workflow.Transition `mapstructure:"workflows" validate:"unique=Name,dive"`
}

// NewViper returns a viper instance with defaults and environment overrides
// set. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetConfigType("yaml")
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("poll.interval", 2*time.Second)
	v.SetDefault("poll.pace", 500*time.Millisecond)
	v.SetDefault("poll.backfill", true)
	v.SetDefault("server.addr", ":8081")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("journal.path", "")
}

// Load reads path (if not empty) into v, then decodes and validates the
// result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// strip trailing slash so resource paths join cleanly
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if len(cfg.Workflows) == 0 {
		cfg.Workflows = []workflow.Transition{workflow.AccountPending}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file, flags or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := Load(v, "")
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

var validate = validator.New()

// Validate checks cfg against its struct constraints.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps log.level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
