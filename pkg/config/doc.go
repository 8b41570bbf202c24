// Package config provides configuration management for the requirement
// pipeline service.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file (or defaults) with environment overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// LoadConfigWithEnvOverrides accepts an empty path, in which case the
// configuration is built from defaults and the environment alone. This is
// the common deployment shape: a container with DATABASE_URL, provider
// credentials, and Git identity in the environment and no config file.
//
// # Environment Variables
//
// Well-known operational variables map directly onto sections:
//
//   - DATABASE_URL selects and configures the task store backend by scheme
//   - QUEUE_DATABASE_PATH, MAX_CONCURRENT_TASKS configure the queue
//   - DEFAULT_LLM_PROVIDER, LLM_FALLBACK_ORDER configure routing
//   - OLLAMA_API_URL, OLLAMA_MODELS configure the local model runtime
//   - GIT_USERNAME, GIT_EMAIL, GIT_SSH_KEY_PATH, GIT_TOKEN configure commits
//   - AUTH_SECRET, AUTH_AES_KEY, AUTH_AES_IV configure the request guard
//
// Other fields follow the LOOM_SECTION_FIELD convention, e.g.
// LOOM_SERVER_PORT, LOOM_PROVIDERS_OPENAI_API_KEY,
// LOOM_TELEMETRY_LOGGING_LEVEL. The conventional <NAME>_API_KEY variables
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...) are honored as credential
// fallbacks. Environment variables always take precedence over file values.
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All configuration is validated during loading. Validation errors include
// field paths and messages:
//
//	configuration validation failed with 2 errors:
//	  - providers.openai.api_key: API key is required
//	  - queue.concurrency: concurrency must be at least 1
//
// A configuration that fails validation refuses startup; the service never
// runs on a partially valid config.
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	providers:
//	  openai:
//	    protocol: "openai-chat"
//	    model: "gpt-4o-mini"
//	    # credential comes from OPENAI_API_KEY in the environment
//
//	ollama:
//	  models: ["codellama:13b", "deepseek-coder:6.7b"]
//
//	routing:
//	  default_provider: "openai"
//	  fallback_order: ["openai", "codellama:13b"]
//
//	git:
//	  username: "loom-bot"
//	  email: "loom-bot@example.com"
package config
