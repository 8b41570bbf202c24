package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path starts from defaults only,
// so a deployment can be configured entirely through the environment.
//
// Well-known variables (DATABASE_URL, MAX_CONCURRENT_TASKS, OLLAMA_MODELS,
// GIT_USERNAME, AUTH_SECRET, ...) map onto their sections directly; other
// fields follow the LOOM_SECTION_FIELD convention. Environment variables
// always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file (or start empty)
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config

	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &Config{}
		ApplyDefaults(cfg)
	}

	applyEnvOverrides(cfg)

	// Overrides can introduce new sections (a provider created from env
	// alone, a backend switch); fill their zero fields.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("LOOM_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("LOOM_SERVER_PORT"); val != "" {
		host, _, err := net.SplitHostPort(cfg.Server.ListenAddress)
		if err != nil {
			host = "127.0.0.1"
		}
		cfg.Server.ListenAddress = net.JoinHostPort(host, val)
	}
	if val := os.Getenv("LOOM_SERVER_API_PREFIX"); val != "" {
		cfg.Server.APIPrefix = val
	}

	// Store overrides
	if val := os.Getenv("DATABASE_URL"); val != "" {
		applyDatabaseURL(cfg, val)
	}

	// Queue overrides
	if val := os.Getenv("QUEUE_DATABASE_PATH"); val != "" {
		cfg.Queue.DatabasePath = val
	}
	if val := os.Getenv("MAX_CONCURRENT_TASKS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Queue.Concurrency = i
		}
	}

	// Routing overrides
	if val := os.Getenv("DEFAULT_LLM_PROVIDER"); val != "" {
		cfg.Routing.DefaultProvider = val
	}
	if val := os.Getenv("LLM_FALLBACK_ORDER"); val != "" {
		cfg.Routing.FallbackOrder = splitCommaList(val)
	}

	// Ollama overrides
	if val := os.Getenv("OLLAMA_API_URL"); val != "" {
		cfg.Ollama.BaseURL = val
	}
	if val := os.Getenv("OLLAMA_MODELS"); val != "" {
		cfg.Ollama.Models = splitCommaList(val)
	}

	// Provider overrides for configured providers plus the well-known set,
	// so a provider can be added from the environment alone.
	names := map[string]bool{"openai": true, "anthropic": true, "google": true}
	for name := range cfg.Providers {
		names[name] = true
	}
	for name := range names {
		applyProviderEnvOverrides(cfg, name)
	}

	// Git overrides
	if val := os.Getenv("GIT_USERNAME"); val != "" {
		cfg.Git.Username = val
	}
	if val := os.Getenv("GIT_EMAIL"); val != "" {
		cfg.Git.Email = val
	}
	if val := os.Getenv("GIT_SSH_KEY_PATH"); val != "" {
		cfg.Git.SSHKeyPath = val
	}
	if val := os.Getenv("GIT_TOKEN"); val != "" {
		cfg.Git.Token = val
	}

	// Auth overrides
	if val := os.Getenv("AUTH_SECRET"); val != "" {
		cfg.Auth.Secret = val
	}
	if val := os.Getenv("AUTH_AES_KEY"); val != "" {
		cfg.Auth.AESKey = val
	}
	if val := os.Getenv("AUTH_AES_IV"); val != "" {
		cfg.Auth.AESIV = val
	}

	// Pipeline overrides
	if val := os.Getenv("LOOM_PIPELINE_ENFORCE_QUALITY_GATE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Pipeline.EnforceQualityGate = b
		}
	}
	if val := os.Getenv("LOOM_PIPELINE_MULTI_MODEL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Pipeline.MultiModel = b
		}
	}

	// Templates overrides
	if val := os.Getenv("LOOM_TEMPLATES_DIR"); val != "" {
		cfg.Templates.Dir = val
	}

	// Telemetry overrides
	if val := os.Getenv("LOOM_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("LOOM_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("LOOM_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
}

// applyDatabaseURL routes DATABASE_URL onto the store section by scheme.
// postgres:// and postgresql:// select the postgres backend with the URL as
// DSN; sqlite: and file: prefixes (or a bare path) select the sqlite backend.
func applyDatabaseURL(cfg *Config, val string) {
	switch {
	case strings.HasPrefix(val, "postgres://"), strings.HasPrefix(val, "postgresql://"):
		cfg.Database.Backend = "postgres"
		cfg.Database.Postgres.DSN = val
	default:
		path := val
		for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
			if strings.HasPrefix(path, prefix) {
				path = strings.TrimPrefix(path, prefix)
				break
			}
		}
		cfg.Database.Backend = "sqlite"
		cfg.Database.SQLite.Path = path
	}
}

// applyProviderEnvOverrides applies environment variable overrides for one
// provider. Variables follow the format LOOM_PROVIDERS_<NAME>_<FIELD> with
// the uppercased provider name; the conventional <NAME>_API_KEY (e.g.
// OPENAI_API_KEY) is honored as a credential fallback.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	provider, exists := cfg.Providers[providerName]

	envName := strings.ToUpper(strings.NewReplacer("-", "_", ":", "_", ".", "_").Replace(providerName))
	prefix := fmt.Sprintf("LOOM_PROVIDERS_%s_", envName)

	modified := false

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		provider.BaseURL = val
		modified = true
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		provider.APIKey = val
		modified = true
	} else if val := os.Getenv(envName + "_API_KEY"); val != "" {
		provider.APIKey = val
		modified = true
	}
	if val := os.Getenv(prefix + "MODEL"); val != "" {
		provider.Model = val
		modified = true
	}
	if val := os.Getenv(prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
			modified = true
		}
	}
	if val := os.Getenv(prefix + "MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.MaxRetries = i
			modified = true
		}
	}

	// Only create a map entry when the environment actually configured
	// something.
	if modified || exists {
		cfg.Providers[providerName] = provider
	}
}

// splitCommaList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitCommaList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
