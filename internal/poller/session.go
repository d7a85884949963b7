package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Loop states. StatePolling is the only non-terminal state a [Check] carries.
const (
	StatePolling   = "polling"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateNotFound  = "not_found"
	StateTimedOut  = "timed_out"
	StateCancelled = "cancelled"
)

// Verdict is the classification of one status snapshot.
type Verdict string

const (
	VerdictContinue  Verdict = "continue"
	VerdictCompleted Verdict = "completed"
	VerdictFailed    Verdict = "failed"
	VerdictNotFound  Verdict = "not_found"
)

// Snapshot is the poller-internal view of one job status response.
type Snapshot struct {
	Status     string
	StopReason string
}

// QueryFunc fetches the current status of the job being observed.
// Any returned error ends the loop in [StateFailed].
type QueryFunc func(ctx context.Context) (Snapshot, error)

// Classifier maps a snapshot to a [Verdict].
//
// This is the poller-internal version that works on strings rather than
// the pricewatch types, avoiding circular dependencies.
type Classifier func(status, stopReason string) Verdict

// Check is the result of one tick of a [Loop].
type Check struct {
	// Number is the 1-based index of the check within the session.
	// Zero for a cancellation that happened before the first check.
	Number int

	// Snapshot is the status returned by the query, zero on error.
	Snapshot Snapshot

	// State is StatePolling or one of the terminal states.
	State string

	// Err is set for transport failures, classifier panics and cancellation.
	Err error

	// CheckedAt is when the check finished.
	CheckedAt time.Time
}

// Terminal reports whether the check ended its session.
func (c Check) Terminal() bool {
	return c.State != StatePolling
}

// Loop polls a single job at a fixed interval until a terminal state.
//
// One Loop is one polling session: it emits one [Check] per tick on the
// channel returned by [Loop.Checks], and exactly one terminal Check before
// the channel is closed (unless it is stopped before it ever started).
// The ticker is released on every exit path.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Loop struct {
	query     QueryFunc
	classify  Classifier
	interval  time.Duration
	maxChecks int
	logger    *slog.Logger

	checks chan Check
	done   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	final     *Check
	closeOnce sync.Once
	doneOnce  sync.Once
}

// NewLoop creates a polling [Loop].
//
// Parameters:
//   - query: fetches one status snapshot
//   - classify: decides whether a snapshot is terminal
//   - interval: time between checks; the first check happens one interval after Start
//   - maxChecks: retry ceiling; the maxChecks-th non-terminal check times out
//   - logger: logger for panic recovery and transport errors
func NewLoop(query QueryFunc, classify Classifier, interval time.Duration, maxChecks int, logger *slog.Logger) *Loop {
	if maxChecks < 1 {
		maxChecks = 1
	}
	return &Loop{
		query:     query,
		classify:  classify,
		interval:  interval,
		maxChecks: maxChecks,
		logger:    logger,
		// room for every check plus a cancellation so the loop never blocks on a slow reader
		checks: make(chan Check, maxChecks+1),
		done:   make(chan struct{}),
	}
}

// Checks returns a receive-only channel that emits one [Check] per tick.
//
// The channel is closed when the loop ends.
func (l *Loop) Checks() <-chan Check {
	return l.checks
}

// Done returns a channel that is closed once the loop has fully ended.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Final returns the terminal check, if the loop has produced one.
func (l *Loop) Final() (Check, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.final == nil {
		return Check{}, false
	}
	return *l.final, true
}

// Start begins the polling loop in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer l.closeDone()
		defer l.closeChecks()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for n := 1; ; n++ {
			select {
			case <-loopCtx.Done():
				l.emit(Check{
					Number:    n - 1,
					State:     StateCancelled,
					Err:       loopCtx.Err(),
					CheckedAt: time.Now(),
				})
				return
			case <-ticker.C:
			}

			check := l.check(loopCtx, n)
			l.emit(check)
			if check.Terminal() {
				return
			}
		}
	}()
}

// Stop halts the loop and waits for its goroutine to exit.
//
// A running loop ends in [StateCancelled]. Stop is idempotent and safe to
// call before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		if l.cancel != nil {
			l.cancel()
		}
	}
	started := l.started
	l.mu.Unlock()

	l.wg.Wait()

	// ensure channels are closed even if Start() was never called
	l.closeChecks()
	if !started {
		l.closeDone()
	}
}

func (l *Loop) closeChecks() {
	l.closeOnce.Do(func() { close(l.checks) })
}

func (l *Loop) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// emit records terminal checks and publishes the check.
func (l *Loop) emit(c Check) {
	if c.Terminal() {
		l.mu.Lock()
		l.final = &c
		l.mu.Unlock()
	}
	l.checks <- c
}

// check performs tick n and decides the resulting state.
//
// Rules, in order: transport error, classifier verdict, retry ceiling.
func (l *Loop) check(ctx context.Context, n int) Check {
	snap, err := l.safeQuery(ctx)
	c := Check{Number: n, Snapshot: snap}

	if err != nil {
		c.Snapshot = Snapshot{}
		c.Err = err
		c.State = StateFailed
		if ctx.Err() != nil {
			c.State = StateCancelled
			c.Err = ctx.Err()
		}
		c.CheckedAt = time.Now()
		return c
	}

	verdict, err := l.safeClassify(snap)
	if err != nil {
		c.Err = err
		c.State = StateFailed
		c.CheckedAt = time.Now()
		return c
	}

	switch verdict {
	case VerdictCompleted:
		c.State = StateCompleted
	case VerdictFailed:
		c.State = StateFailed
	case VerdictNotFound:
		c.State = StateNotFound
	default:
		if n >= l.maxChecks {
			c.State = StateTimedOut
		} else {
			c.State = StatePolling
		}
	}
	c.CheckedAt = time.Now()
	return c
}

// safeQuery calls the query with panic recovery.
func (l *Loop) safeQuery(ctx context.Context) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = l.recovered("query", r)
		}
	}()
	if l.query == nil {
		return Snapshot{}, errors.New("no status query configured")
	}
	return l.query(ctx)
}

// safeClassify calls the classifier with panic recovery.
// If the classifier panics, it logs the full stack trace with a correlation ID
// and returns an error containing the ID.
func (l *Loop) safeClassify(snap Snapshot) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = l.recovered("classifier", r)
		}
	}()
	if l.classify == nil {
		return VerdictContinue, nil
	}
	return l.classify(snap.Status, snap.StopReason), nil
}

func (l *Loop) recovered(what string, r any) error {
	correlationID := uuid.NewString()
	l.logger.Error(what+" panic",
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)
	return fmt.Errorf("%s panic (correlation_id: %s)", what, correlationID)
}
