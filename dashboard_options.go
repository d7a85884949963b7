package pricewatch

import (
	"errors"
	"log/slog"
)

// dashboardConfig holds mutable state during Dashboard construction.
type dashboardConfig struct {
	title       string
	port        int
	logger      *slog.Logger
	trackerOpts []TrackerOption
	toggleOpts  []ToggleOption
}

// DashboardOption is a function that configures a [Dashboard] during
// construction.
//
// Built-in options: [WithPort], [WithTitle], [WithDashboardLogger],
// [WithTrackerOptions], [WithToggleOptions].
type DashboardOption func(*dashboardConfig) error

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "PriceWatch".
func WithTitle(title string) DashboardOption {
	return func(cfg *dashboardConfig) error {
		cfg.title = title
		return nil
	}
}

// WithDashboardLogger sets the logger of the dashboard and, unless they set
// their own, of its tracker and toggle manager.
//
// Returns an error if the logger is nil.
func WithDashboardLogger(logger *slog.Logger) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTrackerOptions configures the dashboard's [Tracker].
//
// Example:
//
//	d, err := pricewatch.NewDashboard(client,
//	    pricewatch.WithTrackerOptions(
//	        pricewatch.WithPollingInterval(5*time.Second),
//	        pricewatch.WithMaxChecks(120),
//	    ),
//	)
func WithTrackerOptions(opts ...TrackerOption) DashboardOption {
	return func(cfg *dashboardConfig) error {
		cfg.trackerOpts = append(cfg.trackerOpts, opts...)
		return nil
	}
}

// WithToggleOptions configures the dashboard's [Toggles] manager.
func WithToggleOptions(opts ...ToggleOption) DashboardOption {
	return func(cfg *dashboardConfig) error {
		cfg.toggleOpts = append(cfg.toggleOpts, opts...)
		return nil
	}
}
