package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - requirement-to-code pipeline service",
	Long: `Loom is an asynchronous requirement processing service that turns
natural-language software requirements into committed code.

Each accepted requirement moves through a multi-stage pipeline:
  - LLM requirement analysis
  - Code generation (optionally fanned out across local models)
  - Quality scoring against the analyzed requirement
  - Git commit and push to the task's repository

Tasks are durable and observable: clients create a task, receive its id
immediately, and poll for progress, queue state, and quality scores.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
