package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forgehq/loom/pkg/cli"
	"forgehq/loom/pkg/config"
	"forgehq/loom/pkg/telemetry/logging"
)

var validateFlags struct {
	format string
}

// configSummary is the machine-readable result of a validation run.
type configSummary struct {
	Valid         bool     `json:"valid"`
	ConfigFile    string   `json:"config_file"`
	ListenAddress string   `json:"listen_address,omitempty"`
	APIPrefix     string   `json:"api_prefix,omitempty"`
	StoreBackend  string   `json:"store_backend,omitempty"`
	QueueBackend  string   `json:"queue_backend,omitempty"`
	Concurrency   int      `json:"concurrency,omitempty"`
	Providers     int      `json:"providers"`
	OllamaModels  int      `json:"ollama_models"`
	GuardEnabled  bool     `json:"guard_enabled"`
	Problems      []string `json:"problems,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting anything.

The validate command applies environment variable overrides exactly as the
serve command would, then checks every section: server addresses and
timeouts, store and queue backends, provider entries, the request guard,
and pipeline policy. All problems are reported in one pass.

Examples:
  # Validate the default config file
  loom validate

  # Validate a specific file
  loom validate --config /etc/loom/config.yaml

  # Machine-readable result for CI
  loom validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var validationErr config.ValidationError
		if errors.As(err, &validationErr) {
			reportInvalid(validationErr)
			return cli.NewConfigError("", "validation failed")
		}
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if validateFlags.format == string(cli.FormatJSON) {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, configSummary{
			Valid:         true,
			ConfigFile:    cfgFile,
			ListenAddress: cfg.Server.ListenAddress,
			APIPrefix:     cfg.Server.APIPrefix,
			StoreBackend:  cfg.Database.Backend,
			QueueBackend:  cfg.Queue.Backend,
			Concurrency:   cfg.Queue.Concurrency,
			Providers:     len(cfg.Providers),
			OllamaModels:  len(cfg.Ollama.Models),
			GuardEnabled:  cfg.Auth.GuardEnabled(),
		})
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Server:    %s (prefix %s)\n", cfg.Server.ListenAddress, cfg.Server.APIPrefix)
	fmt.Printf("  Store:     %s\n", describeBackend(cfg.Database.Backend, cfg.Database.SQLite.Path))
	fmt.Printf("  Queue:     %s (concurrency %d)\n", describeBackend(cfg.Queue.Backend, cfg.Queue.DatabasePath), cfg.Queue.Concurrency)
	fmt.Printf("  Providers: %d configured", len(cfg.Providers))
	if len(cfg.Ollama.Models) > 0 {
		fmt.Printf(", %d ollama models", len(cfg.Ollama.Models))
	}
	fmt.Println()
	if cfg.Auth.GuardEnabled() {
		fmt.Printf("  Guard:     enabled (secret %s)\n", logging.MaskSecret(cfg.Auth.Secret))
	} else {
		fmt.Println("  Guard:     disabled")
	}
	if verbose {
		for name, p := range cfg.Providers {
			fmt.Printf("  Provider %q: protocol=%s model=%s enabled=%t key=%s\n",
				name, p.Protocol, p.Model, p.IsEnabled(), logging.MaskSecret(p.APIKey))
		}
	}
	return nil
}

// reportInvalid prints every field error in the requested format.
func reportInvalid(validationErr config.ValidationError) {
	if validateFlags.format == string(cli.FormatJSON) {
		problems := make([]string, 0, len(validationErr.Errors))
		for _, fieldErr := range validationErr.Errors {
			problems = append(problems, fieldErr.Error())
		}
		formatter := cli.NewFormatter(cli.FormatJSON)
		_ = formatter.FormatTo(os.Stdout, configSummary{
			Valid:      false,
			ConfigFile: cfgFile,
			Problems:   problems,
		})
		return
	}

	fmt.Printf("✗ Configuration invalid (%d problems)\n", len(validationErr.Errors))
	for _, fieldErr := range validationErr.Errors {
		fmt.Printf("  - %s: %s\n", fieldErr.Field, fieldErr.Message)
	}
}

// describeBackend renders a backend name with its sqlite path when that is
// the backend in play.
func describeBackend(backend, sqlitePath string) string {
	if backend == "" {
		backend = "sqlite"
	}
	if backend == "sqlite" && sqlitePath != "" {
		return fmt.Sprintf("%s (%s)", backend, sqlitePath)
	}
	return backend
}
