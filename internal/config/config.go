// Package config loads server settings from defaults, an optional config
// file, the environment and command-line flags, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. MOLTBLOX_DB_PATH.
const EnvPrefix = "MOLTBLOX"

type Config struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	DBPath          string        `mapstructure:"dbPath" validate:"required"`
	LogLevel        string        `mapstructure:"logLevel" validate:"oneof=debug info warn error"`
	MetricsAddr     string        `mapstructure:"metricsAddr"` // empty disables the statsviz listener
	CleanupInterval time.Duration `mapstructure:"cleanupInterval" validate:"gt=0"`
	SessionMaxAge   time.Duration `mapstructure:"sessionMaxAge" validate:"gt=0"`
	MaxCPUSteps     int           `mapstructure:"maxCpuSteps" validate:"min=1"`
}

// env maps config keys to their environment names. PORT and DB_PATH keep
// older deployments working.
var env = map[string][]string{
	"addr":            {EnvPrefix + "_ADDR"},
	"dbPath":          {EnvPrefix + "_DB_PATH", "DB_PATH"},
	"logLevel":        {EnvPrefix + "_LOG_LEVEL"},
	"metricsAddr":     {EnvPrefix + "_METRICS_ADDR"},
	"cleanupInterval": {EnvPrefix + "_CLEANUP_INTERVAL"},
	"sessionMaxAge":   {EnvPrefix + "_SESSION_MAX_AGE"},
	"maxCpuSteps":     {EnvPrefix + "_MAX_CPU_STEPS"},
}

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	v.SetDefault("addr", addr)
	v.SetDefault("dbPath", "moltblox.db")
	v.SetDefault("logLevel", "info")
	v.SetDefault("metricsAddr", "")
	v.SetDefault("cleanupInterval", time.Minute)
	v.SetDefault("sessionMaxAge", time.Hour)
	v.SetDefault("maxCpuSteps", 64)
}

// LoadDotEnv reads KEY=value files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load fills a Config from v. Flags should already be bound to v; file may
// be empty.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range env {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
