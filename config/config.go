// Package config loads and validates the server configuration from
// defaults, config files, environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration struct.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Rights   RightsConfig      `mapstructure:"rights"`
	Storage  StorageConfig     `mapstructure:"storage"`
	Web      WebConfig         `mapstructure:"web"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Headers  map[string]string `mapstructure:"headers"`
	Encoding string            `mapstructure:"encoding" validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr             string        `mapstructure:"addr" validate:"required"`
	BasePrefix       string        `mapstructure:"base_prefix"`
	MaxContentLength int64         `mapstructure:"max_content_length" validate:"min=0"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" validate:"min=0"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// AuthConfig selects and parametrizes the authentication backend.
type AuthConfig struct {
	Type  string            `mapstructure:"type" validate:"required,oneof=none denyall static remote_user"`
	Realm string            `mapstructure:"realm" validate:"required"`
	Delay float64           `mapstructure:"delay" validate:"min=0"`
	Users map[string]string `mapstructure:"users"`
}

// RightsConfig selects the authorization backend.
type RightsConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=none authenticated owner_write owner_only"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=memory"`
}

// WebConfig selects the web interface backend.
type WebConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=internal none"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level         string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format        string `mapstructure:"format" validate:"required,oneof=text json"`
	MaskPasswords bool   `mapstructure:"mask_passwords"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"addr":      "server.addr",
	"auth":      "auth.type",
	"rights":    "rights.type",
	"storage":   "storage.type",
	"log-level": "logging.level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5232")
	v.SetDefault("server.base_prefix", "")
	v.SetDefault("server.max_content_length", 100_000_000)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.type", "none")
	v.SetDefault("auth.realm", "davrock - Password Required")
	v.SetDefault("auth.delay", 1.0)

	v.SetDefault("rights.type", "owner_only")
	v.SetDefault("storage.type", "memory")
	v.SetDefault("web.type", "internal")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.mask_passwords", true)

	v.SetDefault("encoding", "utf-8")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files
// > defaults.
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}
		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	v.SetEnvPrefix("DAVROCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
