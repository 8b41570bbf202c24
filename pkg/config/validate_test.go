package config

import (
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"openai": {
				Protocol: "openai-chat",
				APIKey:   "test-key",
				Model:    "gpt-4o-mini",
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "bad api prefix",
			mutate:    func(c *Config) { c.Server.APIPrefix = "api" },
			wantField: "server.api_prefix",
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.RequestsPerMinute = -5
			},
			wantField: "server.rate_limit.requests_per_minute",
		},
		{
			name:      "negative rate limit burst",
			mutate:    func(c *Config) { c.Server.RateLimit.Burst = -1 },
			wantField: "server.rate_limit.burst",
		},
		{
			name:      "unsupported database backend",
			mutate:    func(c *Config) { c.Database.Backend = "mysql" },
			wantField: "database.backend",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Database.Backend = "postgres"
				c.Database.Postgres.DSN = ""
			},
			wantField: "database.postgres.dsn",
		},
		{
			name:      "negative concurrency",
			mutate:    func(c *Config) { c.Queue.Concurrency = -1 },
			wantField: "queue.concurrency",
		},
		{
			name:      "negative max attempts",
			mutate:    func(c *Config) { c.Queue.MaxAttempts = -1 },
			wantField: "queue.max_attempts",
		},
		{
			name: "unknown provider protocol",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Protocol = "soap"
				c.Providers["openai"] = p
			},
			wantField: "providers.openai.protocol",
		},
		{
			name: "provider without model",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.Model = ""
				c.Providers["openai"] = p
			},
			wantField: "providers.openai.model",
		},
		{
			name: "provider without api key",
			mutate: func(c *Config) {
				p := c.Providers["openai"]
				p.APIKey = ""
				c.Providers["openai"] = p
			},
			wantField: "providers.openai.api_key",
		},
		{
			name:      "unknown default provider",
			mutate:    func(c *Config) { c.Routing.DefaultProvider = "missing" },
			wantField: "routing.default_provider",
		},
		{
			name: "auth secret without key material",
			mutate: func(c *Config) {
				c.Auth.Secret = "s3cret"
				c.Auth.AESIV = "iv"
			},
			wantField: "auth.aes_key",
		},
		{
			name:      "quality threshold out of range",
			mutate:    func(c *Config) { c.Pipeline.QualityThreshold = 150 },
			wantField: "pipeline.quality_threshold",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			validationErr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fieldErr := range validationErr.Errors {
				if fieldErr.Field == tt.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got %v", tt.wantField, validationErr.Errors)
			}
		})
	}
}

func TestValidate_OllamaModelsSkipAPIKeyCheck(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["codellama"] = ProviderConfig{
		Protocol: "ollama-generate",
		Model:    "codellama:13b",
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		t.Errorf("expected ollama provider without key to be valid, got %v", err)
	}
}

func TestValidate_DefaultProviderMayNameOllamaModel(t *testing.T) {
	cfg := validConfig()
	cfg.Ollama.Models = []string{"codellama:13b"}
	cfg.Routing.DefaultProvider = "codellama:13b"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected ollama model as default provider to be valid, got %v", err)
	}
}

func TestValidationError_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Queue.Concurrency = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "2 errors") {
		t.Errorf("expected message to mention 2 errors, got %q", msg)
	}
	if !strings.Contains(msg, "server.listen_address") {
		t.Errorf("expected message to name the field, got %q", msg)
	}
}
