package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/jpalmerr/pricewatch"
	"github.com/spf13/cobra"
)

// modelsCmd lists the models of a product name.
var modelsCmd = &cobra.Command{
	Use:   "models <name>",
	Short: "List the models of a product",
	Long: `List the models the backend tracks for a product name.

Example:
  pricewatch models "Inspiron 14" -c config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runModels,
}

// trendCmd prints the price history of a product model.
var trendCmd = &cobra.Command{
	Use:   "trend <name> <model>",
	Short: "Print the price trend of a product model",
	Long: `Print the price history of a product model as a table, followed by a
sparkline and the price range.

Example:
  pricewatch trend "Inspiron 14" "Core i7 32GB" -c config.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runTrend,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(trendCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	_, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	sel, err := client.ModelSelector(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sel.Disabled {
		fmt.Fprintf(out, "no models for %q\n", args[0])
		return nil
	}
	for _, opt := range sel.Options {
		if opt.Value == "" {
			continue
		}
		fmt.Fprintln(out, opt.Label)
	}
	return nil
}

func runTrend(cmd *cobra.Command, args []string) error {
	_, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	name, model := args[0], args[1]
	trend, err := client.PriceTrend(cmd.Context(), name, model)
	if err != nil {
		return err
	}
	chart, err := pricewatch.NewTrendChart(name, model, trend)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, chart.Title)
	if chart.Link != "" {
		fmt.Fprintln(out, chart.Link)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tPRICE")
	for i, label := range chart.Labels {
		fmt.Fprintf(tw, "%s\t%d\n", label, chart.Prices[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	low, high := chart.Range()
	fmt.Fprintf(out, "%s  low %d  high %d\n", chart.Sparkline(), low, high)
	return nil
}
