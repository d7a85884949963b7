package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jpalmerr/pricewatch"
	"github.com/jpalmerr/pricewatch/config"
	"github.com/spf13/cobra"
)

// togglesCmd groups the notification toggle commands.
var togglesCmd = &cobra.Command{
	Use:   "toggles",
	Short: "Manage LINE notification toggles",
	Long: `Show and change which items send LINE notifications when their price
drops. At most notifications.max_enabled items can be enabled at once.`,
}

var togglesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notification toggles",
	Args:  cobra.NoArgs,
	RunE:  runTogglesList,
}

var togglesSetCmd = &cobra.Command{
	Use:   "set <order-code> on|off",
	Short: "Enable or disable notifications for an item",
	Long: `Enable or disable LINE notifications for an item.

Enabling an item is refused when the limit is already reached.

Example:
  pricewatch toggles set cn14001 on -c config.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runTogglesSet,
}

func init() {
	togglesCmd.AddCommand(togglesListCmd)
	togglesCmd.AddCommand(togglesSetCmd)
	rootCmd.AddCommand(togglesCmd)
}

// loadToggles creates a toggle manager and loads the current state.
func loadToggles(cmd *cobra.Command) (*pricewatch.Toggles, func(), error) {
	cfg, client, err := newClient(cmd)
	if err != nil {
		return nil, nil, err
	}

	toggles, err := pricewatch.NewToggles(client, config.BuildToggleOptions(cfg, newLogger(slog.LevelWarn))...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if err := toggles.Load(cmd.Context()); err != nil {
		client.Close()
		return nil, nil, err
	}
	return toggles, client.Close, nil
}

func runTogglesList(cmd *cobra.Command, args []string) error {
	toggles, closeFn, err := loadToggles(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	printToggles(cmd, toggles)
	return nil
}

func runTogglesSet(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "1":
		enabled = true
	case "off", "false", "0":
		enabled = false
	default:
		return fmt.Errorf("invalid toggle value %q: want on or off", args[1])
	}

	toggles, closeFn, err := loadToggles(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := toggles.Set(cmd.Context(), args[0], enabled); err != nil {
		return err
	}
	printToggles(cmd, toggles)
	return nil
}

func printToggles(cmd *cobra.Command, toggles *pricewatch.Toggles) {
	values := toggles.Values()
	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := cmd.OutOrStdout()
	for _, code := range codes {
		state := "off"
		if values[code] {
			state = "on"
		}
		fmt.Fprintf(out, "%-12s %s\n", code, state)
	}
	fmt.Fprintf(out, "%d of %d enabled\n", len(toggles.Enabled()), toggles.Limit())
}
