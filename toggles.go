package pricewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DefaultMaxEnabledToggles is the number of items that may have LINE
// notifications enabled at the same time.
const DefaultMaxEnabledToggles = 5

// toggleConfig holds mutable state during toggle manager construction.
type toggleConfig struct {
	limit  int
	logger *slog.Logger
}

// ToggleOption configures a [Toggles] manager during construction.
type ToggleOption func(*toggleConfig) error

// WithToggleLimit sets the maximum number of enabled toggles.
// Defaults to [DefaultMaxEnabledToggles].
//
// Returns an error if n is zero or negative.
func WithToggleLimit(n int) ToggleOption {
	return func(cfg *toggleConfig) error {
		if n <= 0 {
			return errors.New("toggle limit must be positive")
		}
		cfg.limit = n
		return nil
	}
}

// WithToggleLogger sets the logger used for failed updates.
// If not specified, [slog.Default] is used.
func WithToggleLogger(logger *slog.Logger) ToggleOption {
	return func(cfg *toggleConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// Toggles manages the per-item LINE notification toggles.
//
// The local state mirrors what the user sees. The enabled limit is enforced
// locally before any request is sent; a rejected change leaves the local
// state untouched. Toggles is safe for concurrent use.
type Toggles struct {
	client *Client
	limit  int
	logger *slog.Logger

	mu     sync.Mutex
	values map[string]bool
	loaded bool
}

// NewToggles creates a toggle manager backed by client.
func NewToggles(client *Client, opts ...ToggleOption) (*Toggles, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	cfg := &toggleConfig{limit: DefaultMaxEnabledToggles}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Toggles{
		client: client,
		limit:  cfg.limit,
		logger: cfg.logger,
		values: make(map[string]bool),
	}, nil
}

// Limit returns the maximum number of enabled toggles.
func (t *Toggles) Limit() int {
	return t.limit
}

// Load fetches the current toggle of every item and applies it locally.
//
// Items the backend does not report keep their local value. Returns
// [ErrSettingsUnavailable] if the backend answers with success=false.
func (t *Toggles) Load(ctx context.Context) error {
	settings, err := t.client.NotificationSettings(ctx)
	if err != nil {
		t.logger.Error("notification settings load failed", "error", err)
		return err
	}
	if !settings.Success {
		t.logger.Error("backend could not read notification settings")
		return ErrSettingsUnavailable
	}

	t.mu.Lock()
	for code, enabled := range settings.ToggleValues {
		t.values[code] = enabled
	}
	t.loaded = true
	t.mu.Unlock()

	t.logger.Debug("notification settings loaded", "items", len(settings.ToggleValues))
	return nil
}

// Loaded reports whether a [Toggles.Load] has succeeded.
func (t *Toggles) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Values returns a copy of the local toggle state.
func (t *Toggles) Values() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make(map[string]bool, len(t.values))
	for k, v := range t.values {
		cp[k] = v
	}
	return cp
}

// Enabled returns the order codes with notifications enabled, sorted.
func (t *Toggles) Enabled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	codes := make([]string, 0, t.limit)
	for code, enabled := range t.values {
		if enabled {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Set changes the toggle of one item and sends it to the backend.
//
// Enabling an item while [Toggles.Limit] items are already enabled returns
// an error wrapping [ErrToggleLimit] without changing local state or
// sending a request. Otherwise the local state changes first, then the
// update is sent once; a failed update is logged and returned, not retried.
func (t *Toggles) Set(ctx context.Context, orderCode string, enabled bool) error {
	if orderCode == "" {
		return errors.New("order code cannot be empty")
	}

	// the limit cannot be checked against state that was never loaded
	if !t.Loaded() {
		if err := t.Load(ctx); err != nil {
			return fmt.Errorf("notification settings not loaded: %w", err)
		}
	}

	t.mu.Lock()
	if enabled && !t.values[orderCode] && t.enabledCountLocked() >= t.limit {
		t.mu.Unlock()
		t.logger.Warn("notification toggle limit reached",
			"order_code", orderCode,
			"limit", t.limit,
		)
		return fmt.Errorf("%w: at most %d items can be enabled", ErrToggleLimit, t.limit)
	}
	t.values[orderCode] = enabled
	t.mu.Unlock()

	msg, err := t.client.UpdateNotificationSetting(ctx, orderCode, enabled)
	if err != nil {
		t.logger.Error("notification setting update failed",
			"order_code", orderCode,
			"enabled", enabled,
			"error", err,
		)
		return err
	}

	t.logger.Info("notification setting updated",
		"order_code", orderCode,
		"enabled", enabled,
		"response", msg,
	)
	return nil
}

func (t *Toggles) enabledCountLocked() int {
	n := 0
	for _, enabled := range t.values {
		if enabled {
			n++
		}
	}
	return n
}
