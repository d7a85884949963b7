package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/pricewatch"
)

// BuildClient creates the backend [pricewatch.Client] described by cfg.
func BuildClient(cfg *Config) (*pricewatch.Client, error) {
	opts := []pricewatch.ClientOption{
		pricewatch.WithTimeout(cfg.Backend.Timeout.Duration()),
	}

	if len(cfg.Backend.Headers) > 0 {
		opts = append(opts, pricewatch.WithHeaders(mapToKeyValuePairs(cfg.Backend.Headers)...))
	}

	if cfg.Backend.BasePath != nil {
		opts = append(opts, pricewatch.WithBasePath(*cfg.Backend.BasePath))
	}

	return pricewatch.NewClient(cfg.Backend.URL, opts...)
}

// BuildTrackerOptions converts the polling section into tracker options.
func BuildTrackerOptions(cfg *Config, logger *slog.Logger) []pricewatch.TrackerOption {
	opts := []pricewatch.TrackerOption{
		pricewatch.WithPollingInterval(cfg.Polling.Interval.Duration()),
		pricewatch.WithMaxChecks(cfg.Polling.MaxChecks),
		pricewatch.WithClassifier(pricewatch.NewClassifier(cfg.Polling.CleanStopReason)),
	}
	if logger != nil {
		opts = append(opts, pricewatch.WithLogger(logger))
	}
	return opts
}

// BuildToggleOptions converts the notifications section into toggle options.
func BuildToggleOptions(cfg *Config, logger *slog.Logger) []pricewatch.ToggleOption {
	opts := []pricewatch.ToggleOption{
		pricewatch.WithToggleLimit(cfg.Notifications.MaxEnabled),
	}
	if logger != nil {
		opts = append(opts, pricewatch.WithToggleLogger(logger))
	}
	return opts
}

// BuildDashboardOptions converts cfg into dashboard options, including the
// tracker and toggle options.
func BuildDashboardOptions(cfg *Config, logger *slog.Logger) []pricewatch.DashboardOption {
	opts := []pricewatch.DashboardOption{
		pricewatch.WithPort(cfg.Port),
		pricewatch.WithTrackerOptions(BuildTrackerOptions(cfg, logger)...),
		pricewatch.WithToggleOptions(BuildToggleOptions(cfg, logger)...),
	}
	if cfg.Title != "" {
		opts = append(opts, pricewatch.WithTitle(cfg.Title))
	}
	if logger != nil {
		opts = append(opts, pricewatch.WithDashboardLogger(logger))
	}
	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
