// Package main is the entry point for the pricewatch CLI.
//
// PriceWatch can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pricewatch serve -c config.yaml        # Start the dashboard
//	pricewatch validate -c config.yaml     # Validate configuration
//	pricewatch check-price                 # Run a price check and follow it
//	pricewatch notify-test                 # Run a notification test and follow it
//	pricewatch models "Inspiron 14"        # List the models of a product
//	pricewatch trend "Inspiron 14" "i7"    # Print a price trend
//	pricewatch toggles list                # Show notification toggles
//	pricewatch version                     # Show version info
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultEnvFile = ".env"

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pricewatch",
	Short: "A price tracker dashboard and job runner",
	Long: `PriceWatch is a dashboard for a laptop price tracker backend.

It charts the price history of tracked products, starts price checks and
notification tests on the backend and follows them until they finish, and
manages which items send LINE notifications.

Quick start:
  1. Create a config file (pricewatch.yaml), or export PRICEWATCH_BACKEND_URL
  2. Run: pricewatch serve -c pricewatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  backend:
    url: https://abc123.execute-api.ap-northeast-1.amazonaws.com
  polling:
    interval: 10s
    max_checks: 60`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
	// No Run/RunE means this just shows help when called without subcommands
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("backend", "", "backend URL, overrides backend.url")
	rootCmd.PersistentFlags().String("env-file", defaultEnvFile, "dotenv file loaded before the config")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// loadEnvFile loads the dotenv file into the process environment. Variables
// already set are kept. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("failed to load env file: %w", err)
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pricewatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pricewatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}
