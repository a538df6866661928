package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "circuitforge.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
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
	setString(&cfg.Server.Port, "CIRCUITFORGE_PORT")
	setList(&cfg.Server.CORSOrigins, "CIRCUITFORGE_CORS_ORIGINS")
	setInt64(&cfg.Server.BodyLimit, "CIRCUITFORGE_BODY_LIMIT")
	setDuration(&cfg.Server.ShutdownTimeout, "CIRCUITFORGE_SHUTDOWN_TIMEOUT")

	// Render
	setString(&cfg.Render.CompilerPath, "CIRCUITFORGE_COMPILER")
	setString(&cfg.Render.ConverterPath, "CIRCUITFORGE_CONVERTER")
	setInt(&cfg.Render.Density, "CIRCUITFORGE_DENSITY")
	setDuration(&cfg.Render.Timeout, "CIRCUITFORGE_RENDER_TIMEOUT")
	setDuration(&cfg.Render.QueueTimeout, "CIRCUITFORGE_QUEUE_TIMEOUT")
	setInt(&cfg.Render.MaxConcurrent, "CIRCUITFORGE_MAX_CONCURRENT")
	setString(&cfg.Render.WorkRoot, "CIRCUITFORGE_WORK_ROOT")
	setBool(&cfg.Render.IncludePDF, "CIRCUITFORGE_INCLUDE_PDF")
	setString(&cfg.Render.SandboxImage, "CIRCUITFORGE_SANDBOX_IMAGE")

	// Hub
	setInt(&cfg.Hub.QueueSize, "CIRCUITFORGE_HUB_QUEUE_SIZE")
	setDuration(&cfg.Hub.Keepalive, "CIRCUITFORGE_HUB_KEEPALIVE")

	setString(&cfg.Logging.Level, "CIRCUITFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CIRCUITFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CIRCUITFORGE_LOG_ASYNC")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "CIRCUITFORGE_NATS_SUBJECT")

	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")

	// Part search
	setString(&cfg.Parts.ClientID, "NEXAR_CLIENT_ID")
	setString(&cfg.Parts.ClientSecret, "NEXAR_CLIENT_SECRET")
	setString(&cfg.Parts.TokenURL, "CIRCUITFORGE_PARTS_TOKEN_URL")
	setString(&cfg.Parts.GraphQLURL, "CIRCUITFORGE_PARTS_GRAPHQL_URL")
	setDuration(&cfg.Parts.Timeout, "CIRCUITFORGE_PARTS_TIMEOUT")
	setInt64(&cfg.Parts.CacheSizeMB, "CIRCUITFORGE_PARTS_CACHE_SIZE_MB")
	setDuration(&cfg.Parts.CacheTTL, "CIRCUITFORGE_PARTS_CACHE_TTL")
	setString(&cfg.Parts.PreferredSeller, "CIRCUITFORGE_PARTS_PREFERRED_SELLER")

	setInt(&cfg.Breaker.MaxFailures, "CIRCUITFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CIRCUITFORGE_BREAKER_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.BodyLimit < 1 {
		return errors.New("server.body_limit must be >= 1")
	}
	if cfg.Render.CompilerPath == "" {
		return errors.New("render.compiler_path is required")
	}
	if cfg.Render.ConverterPath == "" {
		return errors.New("render.converter_path is required")
	}
	if cfg.Render.Density < 1 {
		return errors.New("render.density must be >= 1")
	}
	if cfg.Render.Timeout <= 0 {
		return errors.New("render.timeout must be positive")
	}
	if cfg.Render.MaxConcurrent < 0 {
		return errors.New("render.max_concurrent must be >= 0")
	}
	if cfg.Hub.QueueSize < 1 {
		return errors.New("hub.queue_size must be >= 1")
	}
	if cfg.Hub.Keepalive <= 0 {
		return errors.New("hub.keepalive must be positive")
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject == "" {
		return errors.New("nats.subject is required when nats.url is set")
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

// setList splits a comma-separated env value, dropping empty entries.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
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
