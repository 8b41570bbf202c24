package config

import (
	"fmt"
	"net/url"
	"strings"
)

// knownProtocols lists the wire protocols an adapter exists for.
var knownProtocols = map[string]bool{
	"openai-chat":        true,
	"anthropic-messages": true,
	"google-generate":    true,
	"ollama-generate":    true,
}

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "queue.concurrency").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together so a broken config can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validatePipeline(&cfg.Pipeline)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if !strings.HasPrefix(cfg.APIPrefix, "/") {
		errs = append(errs, FieldError{
			Field:   "server.api_prefix",
			Message: "API prefix must start with /",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.rate_limit.requests_per_minute",
			Message: "requests per minute must be positive when rate limiting is enabled",
		})
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   "server.rate_limit.burst",
			Message: "burst must be non-negative",
		})
	}

	return errs
}

// validateDatabase validates task store configuration.
func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "database.sqlite.path",
				Message: "database path is required for the sqlite backend",
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "database.postgres.dsn",
				Message: "connection string is required for the postgres backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unsupported backend %q (supported: sqlite, postgres)", cfg.Backend),
		})
	}

	return errs
}

// validateQueue validates job queue configuration.
func validateQueue(cfg *QueueConfig) []FieldError {
	var errs []FieldError

	if cfg.Name == "" {
		errs = append(errs, FieldError{
			Field:   "queue.name",
			Message: "queue name is required",
		})
	}
	if cfg.Backend != "sqlite" && cfg.Backend != "postgres" {
		errs = append(errs, FieldError{
			Field:   "queue.backend",
			Message: fmt.Sprintf("unsupported backend %q (supported: sqlite, postgres)", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.DatabasePath == "" {
		errs = append(errs, FieldError{
			Field:   "queue.database_path",
			Message: "database path is required for the sqlite backend",
		})
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, FieldError{
			Field:   "queue.concurrency",
			Message: "concurrency must be at least 1",
		})
	}
	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{
			Field:   "queue.max_attempts",
			Message: "max attempts must be at least 1",
		})
	}
	if cfg.RetryBackoff <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.retry_backoff",
			Message: "retry backoff must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.poll_interval",
			Message: "poll interval must be positive",
		})
	}
	if cfg.LockDuration <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.lock_duration",
			Message: "lock duration must be positive",
		})
	}
	if cfg.CleanGrace < 0 {
		errs = append(errs, FieldError{
			Field:   "queue.clean_grace",
			Message: "clean grace must be non-negative",
		})
	}

	return errs
}

// validateProviders validates provider and routing configuration.
func validateProviders(cfg *Config) []FieldError {
	var errs []FieldError

	for name, provider := range cfg.Providers {
		prefix := fmt.Sprintf("providers.%s", name)

		if provider.Protocol != "" && !knownProtocols[provider.Protocol] {
			errs = append(errs, FieldError{
				Field:   prefix + ".protocol",
				Message: fmt.Sprintf("unsupported protocol %q", provider.Protocol),
			})
		}
		if provider.BaseURL != "" {
			if _, err := url.Parse(provider.BaseURL); err != nil {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid URL: %v", err),
				})
			}
		}
		if provider.Model == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".model",
				Message: "default model is required",
			})
		}
		if provider.Protocol != "ollama-generate" && provider.APIKey == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".api_key",
				Message: "API key is required (use the sentinel \"ollama\" for keyless openai-chat endpoints)",
			})
		}
	}

	// The default provider must name a configured provider or a local
	// Ollama model.
	if def := cfg.Routing.DefaultProvider; def != "" {
		if _, ok := cfg.Providers[def]; !ok && !containsString(cfg.Ollama.Models, def) {
			errs = append(errs, FieldError{
				Field:   "routing.default_provider",
				Message: fmt.Sprintf("provider %q is not configured", def),
			})
		}
	}

	return errs
}

// validateAuth validates the request guard configuration.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if cfg.Secret == "" {
		return nil
	}
	if cfg.AESKey == "" {
		errs = append(errs, FieldError{
			Field:   "auth.aes_key",
			Message: "AES key material is required when a secret is configured",
		})
	}
	if cfg.AESIV == "" {
		errs = append(errs, FieldError{
			Field:   "auth.aes_iv",
			Message: "AES IV material is required when a secret is configured",
		})
	}

	return errs
}

// validatePipeline validates processing policy.
func validatePipeline(cfg *PipelineConfig) []FieldError {
	var errs []FieldError

	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 100 {
		errs = append(errs, FieldError{
			Field:   "pipeline.quality_threshold",
			Message: "quality threshold must be between 0 and 100",
		})
	}
	if cfg.AnalysisTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "pipeline.analysis_timeout",
			Message: "analysis timeout must be positive",
		})
	}
	if cfg.GenerationTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "pipeline.generation_timeout",
			Message: "generation timeout must be positive",
		})
	}
	if cfg.ValidationTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "pipeline.validation_timeout",
			Message: "validation timeout must be positive",
		})
	}

	return errs
}

// validateTelemetry validates observability configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q", cfg.Logging.Format),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	return errs
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
