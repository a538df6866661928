// Package config provides hierarchical configuration loading for CircuitForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the CircuitForge service.
type Config struct {
	Server  Server  `yaml:"server"`
	Render  Render  `yaml:"render"`
	Hub     Hub     `yaml:"hub"`
	Logging Logging `yaml:"logging"`
	NATS    NATS    `yaml:"nats"`
	OTel    OTel    `yaml:"otel"`
	Parts   Parts   `yaml:"parts"`
	Breaker Breaker `yaml:"breaker"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	BodyLimit       int64         `yaml:"body_limit"` // Max request body in bytes (default: 1 MiB)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Render holds the external toolchain configuration.
type Render struct {
	CompilerPath  string        `yaml:"compiler_path"`  // pdflatex binary
	ConverterPath string        `yaml:"converter_path"` // ImageMagick convert binary
	Density       int           `yaml:"density"`        // Raster resolution in DPI
	Timeout       time.Duration `yaml:"timeout"`        // Per-stage timeout
	QueueTimeout  time.Duration `yaml:"queue_timeout"`  // Max wait for a free render slot
	MaxConcurrent int           `yaml:"max_concurrent"` // 0 = derive from GOMAXPROCS
	WorkRoot      string        `yaml:"work_root"`      // Parent of scoped work dirs; "" = os.TempDir()
	IncludePDF    bool          `yaml:"include_pdf"`
	SandboxImage  string        `yaml:"sandbox_image"` // Run stages in this container image when set
}

// Hub holds live-update broadcast configuration.
type Hub struct {
	QueueSize int           `yaml:"queue_size"` // Per-subscriber buffered events
	Keepalive time.Duration `yaml:"keepalive"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// NATS holds the optional cross-replica relay configuration. Empty URL disables it.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// OTel holds OpenTelemetry exporter configuration. Empty endpoint disables export.
type OTel struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Parts holds the optional part-search collaborator configuration.
// The feature is enabled only when both client credentials are set.
type Parts struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TokenURL     string        `yaml:"token_url"`
	GraphQLURL   string        `yaml:"graphql_url"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheSizeMB  int64         `yaml:"cache_size_mb"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	PreferredSeller string `yaml:"preferred_seller"` // Substring match on seller name
}

// Enabled reports whether part search credentials are configured.
func (p Parts) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Breaker holds circuit breaker configuration for outbound calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8000",
			CORSOrigins:     []string{"http://localhost:5173"},
			BodyLimit:       1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Render: Render{
			CompilerPath:  "pdflatex",
			ConverterPath: "convert",
			Density:       300,
			Timeout:       60 * time.Second,
			QueueTimeout:  30 * time.Second,
		},
		Hub: Hub{
			QueueSize: 64,
			Keepalive: 30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "circuitforge",
		},
		NATS: NATS{
			Subject: "circuitforge.updates",
		},
		Parts: Parts{
			TokenURL:    "https://identity.nexar.com/connect/token",
			GraphQLURL:  "https://api.nexar.com/graphql",
			Timeout:     15 * time.Second,
			CacheSizeMB: 16,
			CacheTTL:    10 * time.Minute,

			PreferredSeller: "DigiKey",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
