package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PriceWatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pricewatch validate -c config.yaml
  pricewatch validate -c config.yaml --backend https://api.example.com`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if configFile, _ := cmd.Flags().GetString("config"); configFile == "" {
		return errors.New(`required flag(s) "config" not set`)
	}

	cfg, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	basePath := client.BasePath()
	if basePath == "" {
		basePath = "(none)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Backend:       %s\n", cfg.Backend.URL)
	fmt.Fprintf(out, "  Base path:     %s\n", basePath)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.Polling.Interval.Duration())
	fmt.Fprintf(out, "  Max checks:    %d\n", cfg.Polling.MaxChecks)
	fmt.Fprintf(out, "  Max enabled:   %d\n", cfg.Notifications.MaxEnabled)

	return nil
}
