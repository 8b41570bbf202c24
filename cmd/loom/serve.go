package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"forgehq/loom/pkg/cli"
	"forgehq/loom/pkg/config"
	"forgehq/loom/pkg/pipeline"
	"forgehq/loom/pkg/pipeline/analyzer"
	"forgehq/loom/pkg/pipeline/committer"
	"forgehq/loom/pkg/pipeline/generator"
	"forgehq/loom/pkg/pipeline/quality"
	"forgehq/loom/pkg/providerfactory"
	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/queue"
	"forgehq/loom/pkg/server"
	"forgehq/loom/pkg/store"
	"forgehq/loom/pkg/telemetry/health"
	"forgehq/loom/pkg/telemetry/logging"
	"forgehq/loom/pkg/telemetry/metrics"
	"forgehq/loom/pkg/templates"
)

// Intervals for the background gauge refreshers.
const (
	queueDepthInterval     = 15 * time.Second
	providerHealthInterval = 30 * time.Second
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the requirement processing server",
	Long: `Start the requirement processing server with the specified configuration.

The server accepts requirement tasks over HTTP and processes each one
asynchronously: LLM analysis, code generation, quality scoring, and a Git
commit to the task's repository. Task state is persisted and exposed for
polling.

Examples:
  # Start with default config
  loom serve

  # Start with custom config
  loom serve --config /etc/loom/config.yaml

  # Override listen address
  loom serve --listen 0.0.0.0:8080

  # Validate config without starting the server
  loom serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	// Install the process-wide logger; component loggers inherit it.
	if _, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	// Task store
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer st.Close()
	fmt.Printf("✓ Task store ready (%s)\n", describeBackend(cfg.Database.Backend, cfg.Database.SQLite.Path))

	// Job queue
	q, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("failed to open job queue: %w", err)
	}
	defer q.Close()
	fmt.Printf("✓ Job queue ready (%s)\n", describeBackend(cfg.Queue.Backend, cfg.Queue.DatabasePath))

	// Provider registry, with call timings fed into the collector
	slog.Info("building provider registry")
	specs, buildOpts := providerfactory.FromConfig(cfg)
	buildOpts.Observer = func(provider, model string, duration time.Duration, err error) {
		collector.RecordProviderCall(provider, model, duration, providers.ErrorType(err))
	}
	registry, err := providerfactory.BuildRegistry(ctx, specs, buildOpts)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	defer registry.Close()
	fmt.Printf("✓ Provider registry built (%d providers, %d available)\n",
		len(registry.Providers()), len(registry.ListAvailable()))

	// Processing pipeline
	pipe, err := pipeline.New(pipeline.Options{
		Store: st,
		Analyzer: analyzer.New(registry, analyzer.Config{
			Timeout: cfg.Pipeline.AnalysisTimeout,
		}),
		Generator: generator.New(registry, generator.Config{
			Timeout:    cfg.Pipeline.GenerationTimeout,
			MultiModel: cfg.Pipeline.MultiModel,
		}),
		Checker: quality.New(registry, st, quality.Config{
			Timeout:   cfg.Pipeline.ValidationTimeout,
			Threshold: cfg.Pipeline.QualityThreshold,
		}),
		Committer: committer.New(committer.Config{
			Username:   cfg.Git.Username,
			Email:      cfg.Git.Email,
			SSHKeyPath: cfg.Git.SSHKeyPath,
			Token:      cfg.Git.Token,
			Timeout:    cfg.Git.Timeout,
		}),
		Config: pipeline.Config{
			EnforceQualityGate: cfg.Pipeline.EnforceQualityGate,
		},
		Metrics: collector,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	// Worker pool. The pipeline records the failures it diagnoses itself;
	// retry exhaustion is only known here, so the terminal task count for
	// that path is settled from the queue events.
	q.RegisterProcessor(pipe.Process)
	q.Subscribe(queue.Events{
		Completed: func(job *queue.Job) {
			collector.RecordJobOutcome("completed")
		},
		Failed: func(job *queue.Job, err error, final bool) {
			if !final {
				collector.RecordJobOutcome("retried")
				return
			}
			collector.RecordJobOutcome("failed")
			collector.RecordTask(string(store.StatusFailed), time.Since(job.CreatedAt))
		},
		Stalled: func(job *queue.Job) {
			collector.RecordJobOutcome("stalled")
		},
	})
	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stopCancel()
		if err := q.Stop(stopCtx); err != nil {
			slog.Error("worker pool stop failed", "error", err)
		}
	}()
	fmt.Printf("✓ Worker pool started (%d workers)\n", cfg.Queue.Concurrency)

	// Retention janitor
	janitor := queue.NewJanitor(q, cfg.Queue.CleanSchedule, cfg.Queue.CleanGrace)
	if err := janitor.Start(ctx); err != nil {
		slog.Warn("failed to start retention janitor", "error", err)
	} else {
		defer janitor.Stop()
	}

	// Code templates
	if cfg.Templates.Dir != "" {
		loader := templates.NewLoader(st, cfg.Templates.Dir)
		loaded, err := loader.Load(ctx)
		if err != nil {
			slog.Warn("template load failed", "dir", cfg.Templates.Dir, "error", err)
		} else {
			fmt.Printf("✓ Templates loaded (%d from %s)\n", loaded, cfg.Templates.Dir)
		}
		if cfg.Templates.WatchEnabled() {
			watcher := templates.NewWatcher(loader, cfg.Templates.DebounceInterval)
			if err := watcher.Start(ctx); err != nil {
				slog.Warn("failed to start template watcher", "error", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	// Health checks
	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", st.Ping)
	checker.RegisterCheck("queue", q.Ping)
	checker.RegisterCheck("providers", func(ctx context.Context) error {
		if len(registry.ListAvailable()) == 0 {
			return errors.New("no providers available")
		}
		return nil
	})

	// Background gauges
	go pollQueueDepth(ctx, q, collector)
	go pollProviderHealth(ctx, registry, collector)

	// HTTP server
	srv := server.New(server.Options{
		Config:      &cfg.Server,
		Auth:        &cfg.Auth,
		Store:       st,
		Queue:       q,
		Collector:   collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Checker:     checker,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Task API: http://%s%s/requirement-tasks\n", cfg.Server.ListenAddress, cfg.Server.APIPrefix)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.IsEnabled() {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start handles SIGINT/SIGTERM itself and returns once shutdown
	// completes; the signal is watched here only for the console message.
	sigChan := cli.WaitForShutdown()
	select {
	case err := <-errChan:
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		if err := <-errChan; err != nil {
			return cli.NewCommandError("serve", err)
		}
	}

	fmt.Println("✓ Server stopped")
	return nil
}

// openStore maps the database section onto the task store backends.
func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(&store.Config{
		Backend: cfg.Database.Backend,
		SQLite: &store.SQLiteConfig{
			Path:         cfg.Database.SQLite.Path,
			MaxOpenConns: cfg.Database.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Database.SQLite.MaxIdleConns,
			WALMode:      true,
			BusyTimeout:  cfg.Database.SQLite.BusyTimeout,
		},
		Postgres: &store.PostgresConfig{
			DSN:          cfg.Database.Postgres.DSN,
			MaxOpenConns: cfg.Database.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Database.Postgres.MaxIdleConns,
		},
	})
}

// openQueue maps the queue section onto the queue backends. The sqlite
// queue keeps its own database file; the postgres queue shares the task
// store DSN.
func openQueue(cfg *config.Config) (*queue.Queue, error) {
	return queue.Open(&queue.Config{
		Name:    cfg.Queue.Name,
		Backend: cfg.Queue.Backend,
		SQLite: &queue.SQLiteConfig{
			Path: cfg.Queue.DatabasePath,
		},
		Postgres: &queue.PostgresConfig{
			DSN:          cfg.Database.Postgres.DSN,
			MaxOpenConns: cfg.Database.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Database.Postgres.MaxIdleConns,
		},
		Concurrency:        cfg.Queue.Concurrency,
		MaxAttempts:        cfg.Queue.MaxAttempts,
		RetryBackoff:       cfg.Queue.RetryBackoff,
		PollInterval:       cfg.Queue.PollInterval,
		LockDuration:       cfg.Queue.LockDuration,
		StallSweepInterval: cfg.Queue.StallSweepInterval,
	})
}

// pollQueueDepth keeps the queue depth gauges current.
func pollQueueDepth(ctx context.Context, q *queue.Queue, collector *metrics.Collector) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := q.Stats(ctx)
			if err != nil {
				slog.Debug("queue stats poll failed", "error", err)
				continue
			}
			collector.SetQueueDepth("waiting", int(stats.Waiting))
			collector.SetQueueDepth("active", int(stats.Active))
			collector.SetQueueDepth("completed", int(stats.Completed))
			collector.SetQueueDepth("failed", int(stats.Failed))
			collector.SetQueueDepth("delayed", int(stats.Delayed))
		}
	}
}

// pollProviderHealth mirrors registry health into the provider gauge.
func pollProviderHealth(ctx context.Context, registry *providers.Registry, collector *metrics.Collector) {
	ticker := time.NewTicker(providerHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := providerfactory.Summarize(registry)
			for name, status := range summary.Details {
				collector.UpdateProviderHealth(name, status.Healthy)
			}
		}
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Loom v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("configuration summary",
		"store_backend", cfg.Database.Backend,
		"queue_backend", cfg.Queue.Backend,
		"providers", len(cfg.Providers),
		"ollama_models", len(cfg.Ollama.Models),
		"guard_enabled", cfg.Auth.GuardEnabled(),
		"quality_gate", cfg.Pipeline.EnforceQualityGate,
	)
}
