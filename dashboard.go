package pricewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jpalmerr/pricewatch/dashboard"
	"github.com/jpalmerr/pricewatch/internal/server"
	"github.com/jpalmerr/pricewatch/internal/store"
)

const defaultPort = 8080

// Dashboard serves the browser UI of the price tracker.
//
// Dashboard wires a [Client], a [Tracker], a [Toggles] manager and a session
// store behind an HTTP server. Polling sessions started from the UI run
// server-side; their events update the session store first and are then
// delivered to the tracker's event callbacks, and every store update is
// pushed to connected browsers over Server-Sent Events.
//
// The typical lifecycle is:
//
//	d, err := pricewatch.NewDashboard(client, pricewatch.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create dashboard", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	d.Start(ctx) // blocks until context cancelled
type Dashboard struct {
	client   *Client
	title    string
	port     int
	logger   *slog.Logger
	tracker  *Tracker
	toggles  *Toggles
	sessions *store.MemDBStore
}

// NewDashboard creates a [Dashboard] for the backend reached through client.
//
// Defaults:
//   - Port: 8080
//   - Title: "PriceWatch"
//   - Polling interval 10 seconds, 60 checks, 5 enabled toggles
//
// Returns an error if any option is invalid.
func NewDashboard(client *Client, opts ...DashboardOption) (*Dashboard, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	cfg := &dashboardConfig{port: defaultPort}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	sessions, err := store.NewMemDBStore()
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	d := &Dashboard{
		client:   client,
		title:    cfg.title,
		port:     cfg.port,
		logger:   logger,
		sessions: sessions,
	}

	// the store callback runs before any user callback
	trackerOpts := append([]TrackerOption{WithLogger(logger), WithEventCallback(d.record)}, cfg.trackerOpts...)
	d.tracker, err = NewTracker(client, trackerOpts...)
	if err != nil {
		return nil, err
	}

	toggleOpts := append([]ToggleOption{WithToggleLogger(logger)}, cfg.toggleOpts...)
	d.toggles, err = NewToggles(client, toggleOpts...)
	if err != nil {
		d.tracker.Close()
		return nil, err
	}

	return d, nil
}

// Port returns the configured HTTP port for the dashboard server.
func (d *Dashboard) Port() int {
	return d.port
}

// Title returns the configured dashboard title.
func (d *Dashboard) Title() string {
	return d.title
}

// Tracker returns the tracker running the dashboard's polling sessions.
func (d *Dashboard) Tracker() *Tracker {
	return d.tracker
}

// Toggles returns the dashboard's notification toggle manager.
func (d *Dashboard) Toggles() *Toggles {
	return d.toggles
}

// Start loads the notification toggles and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is
// cancelled. A failure to load toggles is logged and does not prevent the
// dashboard from starting; the settings page reloads them on every visit.
// On shutdown every active polling session is
// cancelled.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails to start.
func (d *Dashboard) Start(ctx context.Context) error {
	d.logger.Info("pricewatch starting", "backend", d.client.BaseURL(), "base_path", d.client.BasePath())
	d.logger.Info("polling configured",
		"interval", d.tracker.PollingInterval().String(),
		"max_checks", d.tracker.MaxChecks(),
	)
	d.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", d.port))

	if ctx.Err() != nil {
		return nil
	}

	if err := d.toggles.Load(ctx); err != nil {
		d.logger.Warn("notification toggles not loaded", "error", err)
	}

	httpServer := server.NewServer(d.sessions, &dashboardBackend{d: d}, d.port, dashboard.Assets, d.title, d.logger)
	if err := httpServer.Start(ctx); err != nil {
		d.tracker.Close()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	d.tracker.Close()
	d.client.Close()
	d.logger.Info("pricewatch stopped")
	return nil
}

// record stores the session state carried by an event.
func (d *Dashboard) record(ev Event) {
	if err := d.sessions.Update(eventToSession(ev)); err != nil {
		d.logger.Error("failed to store session", "session_id", ev.SessionID, "error", err)
	}
}

// eventToSession converts an event to its storage representation.
func eventToSession(ev Event) store.Session {
	var errStr *string
	if ev.Err != nil {
		s := ev.Err.Error()
		errStr = &s
	}

	return store.Session{
		ID:         ev.SessionID,
		Kind:       string(ev.Kind),
		Handle:     string(ev.Handle),
		State:      string(ev.State),
		Checks:     ev.Check,
		MaxChecks:  ev.MaxChecks,
		JobStatus:  string(ev.Snapshot.Status),
		StopReason: ev.Snapshot.StopReason,
		Message:    ev.Message,
		StartedAt:  ev.StartedAt,
		UpdatedAt:  ev.At,
		Error:      errStr,
	}
}

// dashboardBackend exposes the dashboard to the UI API, translating errors
// to the server's status classes.
type dashboardBackend struct {
	d *Dashboard
}

func (b *dashboardBackend) Models(ctx context.Context, name string) (any, error) {
	sel, err := b.d.client.ModelSelector(ctx, name)
	if err != nil {
		b.d.logger.Error("model list fetch failed", "name", name, "error", err)
		return nil, fmt.Errorf("%w: %w", server.ErrUpstream, err)
	}
	return sel, nil
}

func (b *dashboardBackend) Trend(ctx context.Context, name, model string) (any, error) {
	trend, err := b.d.client.PriceTrend(ctx, name, model)
	if err != nil {
		b.d.logger.Error("price trend fetch failed", "name", name, "model", model, "error", err)
		return nil, fmt.Errorf("%w: %w", server.ErrUpstream, err)
	}

	chart, err := NewTrendChart(name, model, trend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", server.ErrNotFound, err)
	}
	return chart, nil
}

func (b *dashboardBackend) StartJob(ctx context.Context, kind string) (store.Session, error) {
	k := JobKind(strings.TrimSpace(kind))
	if !k.Valid() {
		return store.Session{}, fmt.Errorf("%w: %w: %q", server.ErrNotFound, ErrUnknownJobKind, kind)
	}

	s, err := b.d.tracker.Start(ctx, k)
	switch {
	case errors.Is(err, ErrSessionActive):
		return store.Session{}, fmt.Errorf("%w: %w", server.ErrConflict, err)
	case err != nil:
		return store.Session{}, fmt.Errorf("%w: %w", server.ErrUpstream, err)
	}

	if stored, ok := b.d.sessions.Get(s.ID()); ok {
		return stored, nil
	}
	return store.Session{
		ID:        s.ID(),
		Kind:      string(k),
		Handle:    string(s.Handle()),
		State:     string(s.State()),
		MaxChecks: b.d.tracker.MaxChecks(),
		StartedAt: s.StartedAt(),
		UpdatedAt: s.StartedAt(),
	}, nil
}

func (b *dashboardBackend) Toggles(ctx context.Context) (server.ToggleState, error) {
	if err := b.d.toggles.Load(ctx); err != nil {
		return b.toggleState(), fmt.Errorf("%w: %w", server.ErrUpstream, err)
	}
	return b.toggleState(), nil
}

func (b *dashboardBackend) toggleState() server.ToggleState {
	return server.ToggleState{
		Values:  b.d.toggles.Values(),
		Enabled: b.d.toggles.Enabled(),
		Limit:   b.d.toggles.Limit(),
	}
}

func (b *dashboardBackend) SetToggle(ctx context.Context, orderCode string, enabled bool) (server.ToggleState, error) {
	if strings.TrimSpace(orderCode) == "" {
		return b.toggleState(), fmt.Errorf("%w: order code cannot be empty", server.ErrInvalid)
	}

	err := b.d.toggles.Set(ctx, orderCode, enabled)
	switch {
	case errors.Is(err, ErrToggleLimit):
		return b.toggleState(), fmt.Errorf("%w: %w", server.ErrConflict, err)
	case err != nil:
		return b.toggleState(), fmt.Errorf("%w: %w", server.ErrUpstream, err)
	}
	return b.toggleState(), nil
}
