package store

import "time"

// Session represents one polling session in storage.
//
// Session is the storage representation of a job polling session, optimized
// for JSON serialization (used by the REST API and SSE). It is decoupled
// from the tracker's types to allow independent evolution.
type Session struct {
	// ID is the session identifier assigned when the session was created.
	ID string `json:"id"`

	// Kind is the job kind (e.g., "check_price", "notification_test").
	Kind string `json:"kind"`

	// Handle is the backend job handle (taskArn). Empty until the job started.
	Handle string `json:"handle"`

	// State is the session state (e.g., "polling", "completed", "timed_out").
	State string `json:"state"`

	// Checks is the number of status queries issued so far.
	Checks int `json:"checks"`

	// MaxChecks is the retry ceiling of the session.
	MaxChecks int `json:"max_checks"`

	// JobStatus is the last status reported by the backend.
	JobStatus string `json:"job_status"`

	// StopReason is the last stop reason reported by the backend.
	StopReason string `json:"stop_reason"`

	// Message is the last user-facing report for the session.
	Message string `json:"message"`

	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is the timestamp of the last event.
	UpdatedAt time.Time `json:"updated_at"`

	// Error contains the error message if the session failed on transport.
	// nil indicates no error (though the job may still have failed).
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to session updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a session and notifies all subscribers.
	// The session is keyed by ID, so subsequent updates replace previous values.
	Update(session Session) error

	// Get returns the session with the given ID.
	Get(id string) (Session, bool)

	// ByHandle returns the session observing the given job handle.
	ByHandle(handle string) (Session, bool)

	// ByKind returns all sessions of the given job kind, oldest first.
	ByKind(kind string) []Session

	// GetAll returns all stored sessions, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Session

	// Subscribe returns a channel that receives session updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Session

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Session)
}
