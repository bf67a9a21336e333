package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "a2a-validator.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "A2AV_PORT")
	setString(&cfg.Server.CORSOrigin, "A2AV_CORS_ORIGIN")

	setString(&cfg.Resolver.Mode, "A2AV_RESOLVER_MODE")
	setDuration(&cfg.Resolver.ProbeTimeout, "A2AV_RESOLVER_PROBE_TIMEOUT")
	setInt(&cfg.Resolver.MaxRedirects, "A2AV_RESOLVER_MAX_REDIRECTS")
	setDuration(&cfg.Resolver.CacheTTL, "A2AV_RESOLVER_CACHE_TTL")

	setDuration(&cfg.Session.InitTimeout, "A2AV_SESSION_INIT_TIMEOUT")
	setDuration(&cfg.Session.SendTimeout, "A2AV_SESSION_SEND_TIMEOUT")
	setInt(&cfg.Session.QueueSize, "A2AV_SESSION_QUEUE_SIZE")

	setInt(&cfg.DebugLog.MaxLogs, "A2AV_DEBUG_MAX_LOGS")
	setInt64(&cfg.Cache.MaxSizeMB, "A2AV_CACHE_SIZE_MB")

	setInt(&cfg.Breaker.MaxFailures, "A2AV_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "A2AV_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "A2AV_LOG_LEVEL")
	setString(&cfg.Logging.Service, "A2AV_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "A2AV_LOG_ASYNC")

	setBool(&cfg.Telemetry.Enabled, "A2AV_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "A2AV_OTEL_ENDPOINT")
}

// validate checks that required fields are set and bounds are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Resolver.Mode {
	case "auto", "sdk", "direct":
	default:
		return fmt.Errorf("resolver.mode must be auto, sdk, or direct (got %q)", cfg.Resolver.Mode)
	}
	if cfg.Resolver.ProbeTimeout <= 0 {
		return errors.New("resolver.probe_timeout must be positive")
	}
	if cfg.Resolver.MaxRedirects < 0 {
		return errors.New("resolver.max_redirects must be >= 0")
	}
	if cfg.Session.InitTimeout <= 0 {
		return errors.New("session.init_timeout must be positive")
	}
	if cfg.Session.QueueSize < 1 {
		return errors.New("session.queue_size must be >= 1")
	}
	if cfg.DebugLog.MaxLogs < 1 {
		return errors.New("debug_log.max_logs must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
