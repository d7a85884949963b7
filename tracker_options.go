package pricewatch

import (
	"errors"
	"log/slog"
	"time"
)

// trackerConfig holds mutable state during Tracker construction.
type trackerConfig struct {
	pollingInterval time.Duration
	maxChecks       int
	classifier      Classifier
	logger          *slog.Logger
	eventCallbacks  []func(Event)
}

// TrackerOption is a function that configures a [Tracker] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithPollingInterval], [WithMaxChecks], [WithClassifier],
// [WithLogger], [WithEventCallback].
type TrackerOption func(*trackerConfig) error

// WithPollingInterval sets the time between two status queries of a session.
//
// The first query happens one interval after the job started.
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) TrackerOption {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithMaxChecks sets the retry ceiling of a session: a job still running
// after n status queries ends the session in [StateTimedOut].
// Defaults to 60 if not specified.
//
// Returns an error if n is zero or negative.
func WithMaxChecks(n int) TrackerOption {
	return func(cfg *trackerConfig) error {
		if n <= 0 {
			return errors.New("max checks must be positive")
		}
		cfg.maxChecks = n
		return nil
	}
}

// WithClassifier replaces [DefaultClassifier].
//
// Returns an error if the classifier is nil.
func WithClassifier(c Classifier) TrackerOption {
	return func(cfg *trackerConfig) error {
		if c == nil {
			return errors.New("classifier cannot be nil")
		}
		cfg.classifier = c
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Tracker.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	tracker, err := pricewatch.NewTracker(client,
//	    pricewatch.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(cfg *trackerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithEventCallback registers a function to be called for every session
// [Event].
//
// Multiple callbacks may be registered; they execute in registration order.
// Events of one session are delivered in order from a single goroutine, so
// callbacks must not block. Panics within callbacks are recovered and
// logged; they do not end the session.
//
// Example:
//
//	tracker, err := pricewatch.NewTracker(client,
//	    pricewatch.WithEventCallback(func(ev pricewatch.Event) {
//	        if ev.Type.Terminal() {
//	            log.Printf("%s: %s", ev.Kind, ev.Message)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(Event)) TrackerOption {
	return func(cfg *trackerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.eventCallbacks = append(cfg.eventCallbacks, cb)
		return nil
	}
}
