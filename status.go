package pricewatch

import "time"

// JobKind identifies which remote job a polling session starts.
type JobKind string

const (
	// JobCheckPrice starts a scrape of current prices.
	JobCheckPrice JobKind = "check_price"

	// JobNotificationTest resets all prices to zero, then starts a scrape so
	// that every enabled item produces a LINE notification.
	JobNotificationTest JobKind = "notification_test"
)

// String returns the string representation of the job kind.
func (k JobKind) String() string {
	return string(k)
}

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobCheckPrice, JobNotificationTest:
		return true
	default:
		return false
	}
}

// JobKinds returns all known job kinds.
func JobKinds() []JobKind {
	return []JobKind{JobCheckPrice, JobNotificationTest}
}

// JobHandle is the opaque identifier (taskArn) of a started remote job.
type JobHandle string

// String returns the string representation of the handle.
func (h JobHandle) String() string {
	return string(h)
}

// JobStatus is the last known status of a remote job as reported by the
// backend. Values follow the container task lifecycle.
type JobStatus string

const (
	JobProvisioning   JobStatus = "PROVISIONING"
	JobPending        JobStatus = "PENDING"
	JobActivating     JobStatus = "ACTIVATING"
	JobRunning        JobStatus = "RUNNING"
	JobDeactivating   JobStatus = "DEACTIVATING"
	JobStopping       JobStatus = "STOPPING"
	JobDeprovisioning JobStatus = "DEPROVISIONING"
	JobStopped        JobStatus = "STOPPED"

	// JobUnknown is reported when the backend cannot find the job.
	JobUnknown JobStatus = "UNKNOWN"
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// CleanStopReason is the stop reason of a job whose container ran to
// completion.
const CleanStopReason = "Essential container in task exited"

// Snapshot is the result of one job status query.
//
// A Snapshot is evaluated once and then discarded; only the latest one is
// kept on a session for display.
type Snapshot struct {
	// Status is the job status reported by the backend.
	Status JobStatus `json:"status"`

	// StopReason is set once the job stopped.
	StopReason string `json:"stopReason,omitempty"`

	// ExitCode is the container exit code as reported, if any.
	ExitCode string `json:"exitCode,omitempty"`

	// StoppedAt is the stop time as reported, if any.
	StoppedAt string `json:"stoppedAt,omitempty"`

	// Handle echoes the job handle the status belongs to.
	Handle JobHandle `json:"taskArn,omitempty"`
}

// SessionState is the state of a polling session.
//
// Sessions move Idle → Started → Polling → terminal. Terminal states are
// final; a new session is required to observe another job.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateStarted   SessionState = "started"
	StatePolling   SessionState = "polling"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
	StateTimedOut  SessionState = "timed_out"
	StateNotFound  SessionState = "not_found"

	// StateCancelled ends a session whose context was cancelled, typically on
	// shutdown. The remote job keeps running.
	StateCancelled SessionState = "cancelled"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// Terminal reports whether s is a final state.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateNotFound, StateCancelled:
		return true
	default:
		return false
	}
}

// Outcome is the terminal result of a polling session.
type Outcome struct {
	// SessionID identifies the session.
	SessionID string

	// Kind is the job kind the session started.
	Kind JobKind

	// Handle is the job handle. Empty if the job never started.
	Handle JobHandle

	// State is the terminal state.
	State SessionState

	// Checks is the number of status queries issued.
	Checks int

	// Last is the last snapshot received, zero if none.
	Last Snapshot

	// Err is set when the session ended on a transport failure or cancellation.
	// Abnormal job termination is reported through State and Last.StopReason.
	Err error

	// StartedAt and EndedAt bound the session.
	StartedAt time.Time
	EndedAt   time.Time
}

// EventType classifies an [Event].
type EventType string

const (
	EventStarted     EventType = "started"
	EventStartFailed EventType = "start_failed"
	EventCheck       EventType = "check"
	EventCompleted   EventType = "completed"
	EventFailed      EventType = "failed"
	EventNotFound    EventType = "not_found"
	EventTimedOut    EventType = "timed_out"
	EventCancelled   EventType = "cancelled"
)

// Terminal reports whether the event ends its session.
func (t EventType) Terminal() bool {
	switch t {
	case EventStartFailed, EventCompleted, EventFailed, EventNotFound, EventTimedOut, EventCancelled:
		return true
	default:
		return false
	}
}

// Event is one report about a polling session, surfaced to the user.
//
// Every session produces exactly one terminal event.
type Event struct {
	// SessionID identifies the session.
	SessionID string

	// Kind is the job kind the session started.
	Kind JobKind

	// Handle is the job handle, empty for [EventStartFailed].
	Handle JobHandle

	// Type classifies the event.
	Type EventType

	// State is the session state after the event.
	State SessionState

	// Message is a human-readable report.
	Message string

	// Check is the 1-based status query number, zero for start events.
	Check int

	// MaxChecks is the retry ceiling of the session.
	MaxChecks int

	// Snapshot is the status that triggered the event, zero if none.
	Snapshot Snapshot

	// Err is set for transport failures.
	Err error

	// StartedAt is when the session was created.
	StartedAt time.Time

	// At is when the event happened.
	At time.Time
}
