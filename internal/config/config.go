// Package config provides hierarchical configuration loading for the A2A
// validator. Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the validator service.
type Config struct {
	Server    Server    `yaml:"server"`
	Resolver  Resolver  `yaml:"resolver"`
	Session   Session   `yaml:"session"`
	DebugLog  DebugLog  `yaml:"debug_log"`
	Cache     Cache     `yaml:"cache"`
	Breaker   Breaker   `yaml:"breaker"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Resolver holds Agent Card resolution configuration.
type Resolver struct {
	Mode         string        `yaml:"mode"`          // "auto" | "sdk" | "direct"
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // overall timeout per candidate URL probe
	MaxRedirects int           `yaml:"max_redirects"`
	CacheTTL     time.Duration `yaml:"cache_ttl"` // TTL for resolved cards in the L1 cache
}

// Session holds per-client session bridge configuration.
type Session struct {
	InitTimeout time.Duration `yaml:"init_timeout"` // bounded wait for agent connection setup
	SendTimeout time.Duration `yaml:"send_timeout"` // per-message dispatch (covers the full stream)
	QueueSize   int           `yaml:"queue_size"`   // pending sends per session before rejection
}

// DebugLog holds debug log relay configuration.
type DebugLog struct {
	MaxLogs int `yaml:"max_logs"` // distinct correlation ids retained
}

// Cache holds resolved-card cache configuration.
type Cache struct {
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// Breaker holds the circuit breaker configuration guarding outbound agent calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "*",
		},
		Resolver: Resolver{
			Mode:         "auto",
			ProbeTimeout: 10 * time.Second,
			MaxRedirects: 5,
			CacheTTL:     time.Minute,
		},
		Session: Session{
			InitTimeout: 10 * time.Second,
			SendTimeout: 5 * time.Minute,
			QueueSize:   16,
		},
		DebugLog: DebugLog{
			MaxLogs: 500,
		},
		Cache: Cache{
			MaxSizeMB: 16,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "a2a-validator",
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}
