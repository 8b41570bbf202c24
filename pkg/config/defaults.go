package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultAPIPrefix       = "/api"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// Rate limit defaults
	DefaultRateLimitPerMinute = 120

	// Database defaults
	DefaultDatabaseBackend = "sqlite"
	DefaultSQLitePath      = "data/loom.db"
	DefaultSQLiteBusy      = 5 * time.Second
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5

	// Queue defaults
	DefaultQueueName          = "requirement-processing"
	DefaultQueueBackend       = "sqlite"
	DefaultQueuePath          = "data/loom-queue.db"
	DefaultConcurrency        = 5
	DefaultMaxAttempts        = 3
	DefaultRetryBackoff       = 5 * time.Second
	DefaultPollInterval       = 1 * time.Second
	DefaultLockDuration       = 60 * time.Second
	DefaultStallSweepInterval = 30 * time.Second
	DefaultCleanSchedule      = "@hourly"
	DefaultCleanGrace         = 24 * time.Hour

	// Provider defaults
	DefaultProviderTimeout    = 120 * time.Second
	DefaultProviderMaxRetries = 3
	DefaultOllamaBaseURL      = "http://localhost:11434"

	// Git defaults
	DefaultGitUsername = "loom-bot"
	DefaultGitEmail    = "loom-bot@localhost"
	DefaultGitTimeout  = 120 * time.Second

	// Pipeline defaults
	DefaultQualityThreshold  = 85.0
	DefaultAnalysisTimeout   = 60 * time.Second
	DefaultGenerationTimeout = 120 * time.Second
	DefaultValidationTimeout = 30 * time.Second

	// Templates defaults
	DefaultTemplateDebounce = 500 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "loom"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.APIPrefix == "" {
		cfg.Server.APIPrefix = DefaultAPIPrefix
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// CORS defaults
	if cfg.Server.CORS.AllowedOrigins == nil {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.CORS.AllowedMethods == nil {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if cfg.Server.CORS.AllowedHeaders == nil {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Rate limit defaults
	if cfg.Server.RateLimit.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.RequestsPerMinute = DefaultRateLimitPerMinute
	}

	// Database defaults
	if cfg.Database.Backend == "" {
		cfg.Database.Backend = DefaultDatabaseBackend
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Database.SQLite.BusyTimeout == 0 {
		cfg.Database.SQLite.BusyTimeout = DefaultSQLiteBusy
	}
	if cfg.Database.SQLite.MaxOpenConns == 0 {
		cfg.Database.SQLite.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Database.SQLite.MaxIdleConns == 0 {
		cfg.Database.SQLite.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Database.Postgres.MaxOpenConns == 0 {
		cfg.Database.Postgres.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Database.Postgres.MaxIdleConns == 0 {
		cfg.Database.Postgres.MaxIdleConns = DefaultMaxIdleConns
	}

	// Queue defaults
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = DefaultQueueName
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = DefaultQueueBackend
	}
	if cfg.Queue.DatabasePath == "" {
		cfg.Queue.DatabasePath = DefaultQueuePath
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = DefaultConcurrency
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Queue.RetryBackoff == 0 {
		cfg.Queue.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = DefaultPollInterval
	}
	if cfg.Queue.LockDuration == 0 {
		cfg.Queue.LockDuration = DefaultLockDuration
	}
	if cfg.Queue.StallSweepInterval == 0 {
		cfg.Queue.StallSweepInterval = DefaultStallSweepInterval
	}
	if cfg.Queue.CleanSchedule == "" {
		cfg.Queue.CleanSchedule = DefaultCleanSchedule
	}
	if cfg.Queue.CleanGrace == 0 {
		cfg.Queue.CleanGrace = DefaultCleanGrace
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		if provider.Timeout == 0 {
			provider.Timeout = DefaultProviderTimeout
		}
		if provider.MaxRetries == 0 {
			provider.MaxRetries = DefaultProviderMaxRetries
		}
		cfg.Providers[name] = provider
	}

	// Ollama defaults
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Ollama.Timeout == 0 {
		cfg.Ollama.Timeout = DefaultProviderTimeout
	}

	// Git defaults
	if cfg.Git.Username == "" {
		cfg.Git.Username = DefaultGitUsername
	}
	if cfg.Git.Email == "" {
		cfg.Git.Email = DefaultGitEmail
	}
	if cfg.Git.Timeout == 0 {
		cfg.Git.Timeout = DefaultGitTimeout
	}

	// Pipeline defaults
	if cfg.Pipeline.QualityThreshold == 0 {
		cfg.Pipeline.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.Pipeline.AnalysisTimeout == 0 {
		cfg.Pipeline.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if cfg.Pipeline.GenerationTimeout == 0 {
		cfg.Pipeline.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.Pipeline.ValidationTimeout == 0 {
		cfg.Pipeline.ValidationTimeout = DefaultValidationTimeout
	}

	// Templates defaults
	if cfg.Templates.DebounceInterval == 0 {
		cfg.Templates.DebounceInterval = DefaultTemplateDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}
