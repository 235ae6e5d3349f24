// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/logging"
	"github.com/passgate/passgate/internal/xdg"
)

const (
	flagConfig = "config"
	envPrefix  = "PASSGATE_"
)

// Default values for serve configuration.
const (
	defaultHTTPAddr        = ":3000"
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultJWTTTL          = 7 * 24 * time.Hour
	defaultJWTIssuer       = "passgate"
	defaultLogFormat       = "json"
	defaultLogLevel        = "info"
	defaultShutdownTimeout = 10 * time.Second
)

// serveConfig holds the resolved service configuration.
type serveConfig struct {
	HTTPAddr        string        `koanf:"http_addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	DatabaseURL     string        `koanf:"database_url"`
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTTTL          time.Duration `koanf:"jwt_ttl"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	GoogleClientID  string        `koanf:"google_client_id"`
	HashTime        uint32        `koanf:"hash_time"`
	HashMemoryKiB   uint32        `koanf:"hash_memory_kib"`
	HashThreads     uint8         `koanf:"hash_threads"`
	LogFormat       string        `koanf:"log_format"`
	LogLevel        string        `koanf:"log_level"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func defaultValues() map[string]any {
	params := auth.DefaultHasherParams()
	return map[string]any{
		"http_addr":        defaultHTTPAddr,
		"metrics_addr":     defaultMetricsAddr,
		"jwt_ttl":          defaultJWTTTL,
		"jwt_issuer":       defaultJWTIssuer,
		"hash_time":        params.Time,
		"hash_memory_kib":  params.Memory,
		"hash_threads":     params.Threads,
		"log_format":       defaultLogFormat,
		"log_level":        defaultLogLevel,
		"auto_migrate":     true,
		"shutdown_timeout": defaultShutdownTimeout,
	}
}

// legacyEnvKeys maps the unprefixed variables of older deployments to
// config keys. They rank just above the defaults.
var legacyEnvKeys = map[string]string{
	"DATABASE_URL":   "database_url",
	"JWT_SECRET":     "jwt_secret",
	"JWT_EXPIRES_IN": "jwt_ttl",
	"PORT":           "http_addr",
}

// loadConfig resolves configuration from defaults, legacy env vars, the
// YAML file, PASSGATE_* env vars, and explicitly set flags, in increasing
// order of precedence. Without --config, $XDG_CONFIG_HOME/passgate/config.yaml
// is read when it exists.
func loadConfig(flags *pflag.FlagSet) (*serveConfig, error) {
	k := koanf.New(".")

	for key, val := range defaultValues() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	for name, key := range legacyEnvKeys {
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		if name == "PORT" {
			val = ":" + val
		}
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	path, _ := flags.GetString(flagConfig)
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	flagProvider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed || f.Name == flagConfig {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	})
	if err := k.Load(flagProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	if raw, ok := k.Get("jwt_ttl").(string); ok {
		ttl, err := parseTTL(raw)
		if err != nil {
			return nil, err
		}
		if err := k.Set("jwt_ttl", ttl); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", "jwt_ttl").Wrap(err)
		}
	}

	cfg := &serveConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	return cfg, nil
}

// parseTTL accepts Go durations ("36h") and whole days ("7d").
func parseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, oops.Code("CONFIG_INVALID").With("jwt_ttl", raw).Errorf("jwt ttl %q is not a positive number of days", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("jwt_ttl", raw).Wrap(err)
	}
	return ttl, nil
}

// Validate checks that the configuration can start the service.
func (cfg *serveConfig) Validate() error {
	if cfg.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http_addr is required")
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if cfg.JWTSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("jwt_secret is required")
	}
	if cfg.JWTTTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("jwt_ttl", cfg.JWTTTL).Errorf("jwt_ttl must be positive")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return oops.With("key", "log_level").Wrap(err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("shutdown_timeout", cfg.ShutdownTimeout).Errorf("shutdown_timeout must be positive")
	}
	return nil
}

func (cfg *serveConfig) hasherParams() auth.HasherParams {
	return auth.HasherParams{
		Time:    cfg.HashTime,
		Memory:  cfg.HashMemoryKiB,
		Threads: cfg.HashThreads,
	}
}
