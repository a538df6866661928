package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Render.Density != 300 {
		t.Errorf("expected density 300, got %d", cfg.Render.Density)
	}
	if cfg.Render.CompilerPath != "pdflatex" {
		t.Errorf("expected compiler pdflatex, got %s", cfg.Render.CompilerPath)
	}
	if cfg.Hub.Keepalive != 30*time.Second {
		t.Errorf("expected keepalive 30s, got %v", cfg.Hub.Keepalive)
	}
	if cfg.Parts.Enabled() {
		t.Error("part search must be disabled without credentials")
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origins: ["http://example.com", "http://localhost:3000"]
render:
  density: 150
  include_pdf: true
  timeout: 5s
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "http://example.com" {
		t.Errorf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Render.Density != 150 {
		t.Errorf("expected density 150, got %d", cfg.Render.Density)
	}
	if !cfg.Render.IncludePDF {
		t.Error("expected include_pdf true")
	}
	if cfg.Render.Timeout != 5*time.Second {
		t.Errorf("expected render timeout 5s, got %v", cfg.Render.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Render.ConverterPath != "convert" {
		t.Errorf("expected default converter, got %s", cfg.Render.ConverterPath)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("expected parse error for malformed YAML")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("CIRCUITFORGE_PORT", "7070")
	t.Setenv("CIRCUITFORGE_CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("CIRCUITFORGE_MAX_CONCURRENT", "3")
	t.Setenv("CIRCUITFORGE_RENDER_TIMEOUT", "2m")
	t.Setenv("CIRCUITFORGE_INCLUDE_PDF", "true")
	t.Setenv("CIRCUITFORGE_LOG_LEVEL", "warn")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NEXAR_CLIENT_ID", "id")
	t.Setenv("NEXAR_CLIENT_SECRET", "secret")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("expected two trimmed origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Render.MaxConcurrent != 3 {
		t.Errorf("expected max concurrent 3, got %d", cfg.Render.MaxConcurrent)
	}
	if cfg.Render.Timeout != 2*time.Minute {
		t.Errorf("expected render timeout 2m, got %v", cfg.Render.Timeout)
	}
	if !cfg.Render.IncludePDF {
		t.Error("expected include_pdf from env")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("expected NATS URL from env, got %s", cfg.NATS.URL)
	}
	if !cfg.Parts.Enabled() {
		t.Error("expected part search enabled with credentials")
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()

	t.Setenv("CIRCUITFORGE_DENSITY", "lots")
	t.Setenv("CIRCUITFORGE_HUB_KEEPALIVE", "soon")

	loadEnv(&cfg)

	if cfg.Render.Density != 300 {
		t.Errorf("invalid int should be ignored, got %d", cfg.Render.Density)
	}
	if cfg.Hub.Keepalive != 30*time.Second {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Hub.Keepalive)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "zero body limit",
			modify: func(c *Config) { c.Server.BodyLimit = 0 },
			errMsg: "server.body_limit must be >= 1",
		},
		{
			name:   "empty compiler",
			modify: func(c *Config) { c.Render.CompilerPath = "" },
			errMsg: "render.compiler_path is required",
		},
		{
			name:   "empty converter",
			modify: func(c *Config) { c.Render.ConverterPath = "" },
			errMsg: "render.converter_path is required",
		},
		{
			name:   "zero density",
			modify: func(c *Config) { c.Render.Density = 0 },
			errMsg: "render.density must be >= 1",
		},
		{
			name:   "zero timeout",
			modify: func(c *Config) { c.Render.Timeout = 0 },
			errMsg: "render.timeout must be positive",
		},
		{
			name:   "negative max concurrent",
			modify: func(c *Config) { c.Render.MaxConcurrent = -1 },
			errMsg: "render.max_concurrent must be >= 0",
		},
		{
			name:   "zero queue size",
			modify: func(c *Config) { c.Hub.QueueSize = 0 },
			errMsg: "hub.queue_size must be >= 1",
		},
		{
			name:   "zero keepalive",
			modify: func(c *Config) { c.Hub.Keepalive = 0 },
			errMsg: "hub.keepalive must be positive",
		},
		{
			name: "nats without subject",
			modify: func(c *Config) {
				c.NATS.URL = "nats://localhost:4222"
				c.NATS.Subject = ""
			},
			errMsg: "nats.subject is required when nats.url is set",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFrom_FullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
hub:
  queue_size: 8
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CIRCUITFORGE_PORT", "7070")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Hub.QueueSize != 8 {
		t.Errorf("YAML should override defaults: got queue size %d, want 8", cfg.Hub.QueueSize)
	}
}

func TestLoadFrom_InvalidFails(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte("render:\n  density: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected validation error")
	}
}
