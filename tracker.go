package pricewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pricewatch/internal/poller"
)

const (
	defaultPollingInterval = 10 * time.Second
	defaultMaxChecks       = 60
)

// Tracker starts remote jobs and follows each one in a polling session.
//
// A session starts its job with one request, then queries the job status
// once per polling interval until the job stops, disappears, fails to
// answer, or the retry ceiling is reached. Each session reports exactly one
// terminal [Event].
//
// At most one session per [JobKind] is active at a time. Sessions of
// different kinds run independently. Tracker is safe for concurrent use.
type Tracker struct {
	client          *Client
	pollingInterval time.Duration
	maxChecks       int
	classify        Classifier
	logger          *slog.Logger
	eventCallbacks  []func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[JobKind]*Session
	closed bool
}

// NewTracker creates a [Tracker] that calls the backend through client.
//
// Defaults:
//   - Polling interval: 10 seconds
//   - Max checks: 60
//   - Classifier: [DefaultClassifier]
func NewTracker(client *Client, opts ...TrackerOption) (*Tracker, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	cfg := &trackerConfig{
		pollingInterval: defaultPollingInterval,
		maxChecks:       defaultMaxChecks,
		classifier:      DefaultClassifier,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		client:          client,
		pollingInterval: cfg.pollingInterval,
		maxChecks:       cfg.maxChecks,
		classify:        cfg.classifier,
		logger:          logger,
		eventCallbacks:  cfg.eventCallbacks,
		ctx:             ctx,
		cancel:          cancel,
		active:          make(map[JobKind]*Session),
	}, nil
}

// PollingInterval returns the time between two status queries.
func (t *Tracker) PollingInterval() time.Duration {
	return t.pollingInterval
}

// MaxChecks returns the retry ceiling of a session.
func (t *Tracker) MaxChecks() int {
	return t.maxChecks
}

// Active returns the active session of kind, if any.
func (t *Tracker) Active(kind JobKind) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.active[kind]
	return s, ok
}

// Start starts the remote job of the given kind and begins polling it.
//
// ctx bounds the start request only; the polling session outlives it and
// ends on its own, through [Session.Cancel], or through [Tracker.Close].
//
// Returns an error wrapping [ErrSessionActive] if a session of the same kind
// is in progress, or [ErrUnknownJobKind] for an invalid kind; neither sends
// a request. If the start request fails or returns no handle, a
// [EventStartFailed] event is reported, nothing is polled, and the error is
// returned.
func (t *Tracker) Start(ctx context.Context, kind JobKind) (*Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}

	s := &Session{
		id:        uuid.NewString(),
		kind:      kind,
		maxChecks: t.maxChecks,
		startedAt: time.Now(),
		state:     StateIdle,
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("tracker is closed")
	}
	if cur, ok := t.active[kind]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s session %s", ErrSessionActive, kind, cur.ID())
	}
	t.active[kind] = s
	t.wg.Add(1)
	t.mu.Unlock()

	handle, err := t.client.StartJob(ctx, kind)
	if err != nil {
		defer t.wg.Done()
		t.release(s)
		t.logger.Error("job start failed", "kind", kind, "session_id", s.id, "error", err)
		t.report(Event{
			SessionID: s.id,
			Kind:      kind,
			Type:      EventStartFailed,
			State:     StateFailed,
			Message:   startFailedMessage(kind, err),
			MaxChecks: t.maxChecks,
			Err:       err,
			StartedAt: s.startedAt,
			At:        time.Now(),
		})
		s.finish(Outcome{
			SessionID: s.id,
			Kind:      kind,
			State:     StateFailed,
			Err:       err,
			StartedAt: s.startedAt,
			EndedAt:   time.Now(),
		})
		return nil, err
	}

	s.mu.Lock()
	s.handle = handle
	s.state = StateStarted
	s.mu.Unlock()

	t.logger.Info("job started", "kind", kind, "session_id", s.id, "handle", handle)
	t.report(Event{
		SessionID: s.id,
		Kind:      kind,
		Handle:    handle,
		Type:      EventStarted,
		State:     StateStarted,
		Message:   fmt.Sprintf("%s started, polling every %s", kind, t.pollingInterval),
		MaxChecks: t.maxChecks,
		StartedAt: s.startedAt,
		At:        time.Now(),
	})

	loop := poller.NewLoop(t.queryFunc(s), t.pollerClassifier(), t.pollingInterval, t.maxChecks, t.logger)
	s.mu.Lock()
	s.loop = loop
	cancelled := s.cancelled
	s.mu.Unlock()

	loop.Start(t.ctx)
	if cancelled {
		loop.Stop()
	}

	go t.follow(s, loop)

	return s, nil
}

// Run starts a session of the given kind and waits for its outcome.
//
// Cancelling ctx cancels the session; the returned outcome is then
// [StateCancelled]. A start failure returns a zero outcome and the error.
func (t *Tracker) Run(ctx context.Context, kind JobKind) (Outcome, error) {
	s, err := t.Start(ctx, kind)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.Wait(ctx)
	if err != nil {
		s.Cancel()
		<-s.Done()
		out, _ = s.Outcome()
	}
	return out, nil
}

// Close cancels every active session and waits for them to end.
//
// Close is idempotent. Start returns an error after Close.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

// follow consumes the checks of a session's loop until it ends.
func (t *Tracker) follow(s *Session, loop *poller.Loop) {
	defer t.wg.Done()

	for check := range loop.Checks() {
		s.mu.Lock()
		s.checks = check.Number
		s.state = SessionState(check.State)
		last := s.last
		s.mu.Unlock()

		if !check.Terminal() {
			t.logger.Debug("job status checked",
				"kind", s.kind,
				"handle", s.handle,
				"check", check.Number,
				"status", last.Status,
			)
			t.report(t.checkEvent(s, check, last))
			continue
		}

		out := Outcome{
			SessionID: s.id,
			Kind:      s.kind,
			Handle:    s.handle,
			State:     SessionState(check.State),
			Checks:    check.Number,
			Last:      last,
			Err:       check.Err,
			StartedAt: s.startedAt,
			EndedAt:   check.CheckedAt,
		}
		t.release(s)
		t.logOutcome(out)
		t.report(t.checkEvent(s, check, last))
		s.finish(out)
	}

	// stopped before producing a terminal check
	if _, ok := s.Outcome(); !ok {
		check := poller.Check{State: poller.StateCancelled, Err: context.Canceled, CheckedAt: time.Now()}
		out := Outcome{
			SessionID: s.id,
			Kind:      s.kind,
			Handle:    s.handle,
			State:     StateCancelled,
			Err:       check.Err,
			StartedAt: s.startedAt,
			EndedAt:   check.CheckedAt,
		}
		t.release(s)
		t.logOutcome(out)
		t.report(t.checkEvent(s, check, s.Last()))
		s.finish(out)
	}
}

// queryFunc returns the status query of a session. The full snapshot is
// kept on the session; the loop only sees status and stop reason.
func (t *Tracker) queryFunc(s *Session) poller.QueryFunc {
	return func(ctx context.Context) (poller.Snapshot, error) {
		snap, err := t.client.JobStatus(ctx, s.handle)
		if err != nil {
			return poller.Snapshot{}, err
		}

		s.mu.Lock()
		s.last = snap
		s.mu.Unlock()

		return poller.Snapshot{Status: string(snap.Status), StopReason: snap.StopReason}, nil
	}
}

// pollerClassifier adapts the tracker's classifier to the poller's.
func (t *Tracker) pollerClassifier() poller.Classifier {
	classify := t.classify
	return func(status, stopReason string) poller.Verdict {
		switch classify(Snapshot{Status: JobStatus(status), StopReason: stopReason}) {
		case Complete:
			return poller.VerdictCompleted
		case Fail:
			return poller.VerdictFailed
		case NotFound:
			return poller.VerdictNotFound
		default:
			return poller.VerdictContinue
		}
	}
}

// release removes s from the active set if it is still registered.
func (t *Tracker) release(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[s.kind] == s {
		delete(t.active, s.kind)
	}
}

// checkEvent converts a loop check into an event.
func (t *Tracker) checkEvent(s *Session, check poller.Check, last Snapshot) Event {
	ev := Event{
		SessionID: s.id,
		Kind:      s.kind,
		Handle:    s.handle,
		State:     SessionState(check.State),
		Check:     check.Number,
		MaxChecks: s.maxChecks,
		Snapshot:  last,
		Err:       check.Err,
		StartedAt: s.startedAt,
		At:        check.CheckedAt,
	}

	switch check.State {
	case poller.StateCompleted:
		ev.Type = EventCompleted
		ev.Message = fmt.Sprintf("%s completed: %s", s.kind, last.StopReason)
	case poller.StateFailed:
		ev.Type = EventFailed
		switch {
		case check.Err != nil:
			ev.Message = fmt.Sprintf("%s failed: %v", s.kind, check.Err)
		default:
			ev.Message = fmt.Sprintf("%s failed: %s", s.kind, last.StopReason)
		}
	case poller.StateNotFound:
		ev.Type = EventNotFound
		ev.Message = fmt.Sprintf("%s not found: job %s is unknown to the backend", s.kind, s.handle)
	case poller.StateTimedOut:
		ev.Type = EventTimedOut
		ev.Message = fmt.Sprintf("%s timed out after %d checks (last status %s)", s.kind, check.Number, last.Status)
	case poller.StateCancelled:
		ev.Type = EventCancelled
		ev.Message = fmt.Sprintf("%s polling cancelled after %d checks", s.kind, check.Number)
	default:
		ev.Type = EventCheck
		ev.Message = fmt.Sprintf("%s status %s (check %d/%d)", s.kind, last.Status, check.Number, s.maxChecks)
	}
	return ev
}

func (t *Tracker) logOutcome(out Outcome) {
	attrs := []any{
		"kind", out.Kind,
		"session_id", out.SessionID,
		"handle", out.Handle,
		"state", out.State,
		"checks", out.Checks,
	}
	switch out.State {
	case StateCompleted:
		t.logger.Info("job completed", attrs...)
	case StateCancelled:
		t.logger.Info("job polling cancelled", attrs...)
	default:
		if out.Last.StopReason != "" {
			attrs = append(attrs, "stop_reason", out.Last.StopReason)
		}
		if out.Err != nil {
			attrs = append(attrs, "error", out.Err.Error())
		}
		t.logger.Warn("job ended abnormally", attrs...)
	}
}

// report delivers ev to every callback in registration order.
func (t *Tracker) report(ev Event) {
	for _, cb := range t.eventCallbacks {
		invokeCallbackSafe(cb, ev, t.logger)
	}
}

// invokeCallbackSafe calls an event callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Event), ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"session_id", ev.SessionID,
				"event", ev.Type,
			)
		}
	}()
	cb(ev)
}

func startFailedMessage(kind JobKind, err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("%s could not start: %s", kind, httpErr.Status)
	}
	return fmt.Sprintf("%s could not start: %v", kind, err)
}

// Session is one polling session: one started job followed to a terminal
// state.
//
// Session is created by [Tracker.Start]. Its accessors are safe for
// concurrent use.
type Session struct {
	id        string
	kind      JobKind
	maxChecks int
	startedAt time.Time
	done      chan struct{}

	mu        sync.Mutex
	loop      *poller.Loop
	handle    JobHandle
	state     SessionState
	checks    int
	last      Snapshot
	outcome   *Outcome
	cancelled bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Kind returns the job kind the session started.
func (s *Session) Kind() JobKind {
	return s.kind
}

// Handle returns the handle of the started job.
func (s *Session) Handle() JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Checks returns the number of status queries issued so far.
func (s *Session) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

// Last returns the latest status snapshot, zero if none was received.
func (s *Session) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Done returns a channel that is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the terminal outcome once the session has ended.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Wait blocks until the session ends or ctx is done.
//
// Returns ctx.Err() if the context ends first; the session keeps running.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		out, _ := s.Outcome()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cancel stops polling. The session ends in [StateCancelled] unless it had
// already ended. The remote job is not affected.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	loop := s.loop
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
}

// finish records the outcome and closes Done. Only the first call counts.
func (s *Session) finish(out Outcome) {
	s.mu.Lock()
	if s.outcome != nil {
		s.mu.Unlock()
		return
	}
	s.outcome = &out
	s.state = out.State
	s.mu.Unlock()
	close(s.done)
}
