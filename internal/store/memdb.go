package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-memdb"
)

const sessionsTable = "sessions"

// subscriberBuffer is the channel buffer size given to each subscriber.
const subscriberBuffer = 100

func sessionsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: sessionsTable,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:         "id",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			"handle": {
				Name:         "handle",
				AllowMissing: true, // sessions that failed to start have no handle
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "Handle",
				},
			},
			"kind": {
				Name:         "kind",
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "Kind",
				},
			},
		},
	}
}

// MemDBStore is a go-memdb implementation of [Store].
//
// MemDBStore provides thread-safe storage with a publish-subscribe mechanism
// for real-time updates. Sessions are keyed by ID, with new values replacing
// previous ones, and are also indexed by job handle and job kind.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the entire system.
type MemDBStore struct {
	db          *memdb.MemDB
	subscribers map[chan Session]struct{}
	subMu       sync.RWMutex
}

// NewMemDBStore creates a new go-memdb backed [Store].
func NewMemDBStore() (*MemDBStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			sessionsTable: sessionsTableSchema(),
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create database: %w", err)
	}

	return &MemDBStore{
		db:          db,
		subscribers: make(map[chan Session]struct{}),
	}, nil
}

// Update stores a [Session] and notifies all subscribers.
//
// Returns an error if the session has no ID or kind.
func (m *MemDBStore) Update(session Session) error {
	if session.ID == "" {
		return fmt.Errorf("store: session id is required")
	}
	if session.Kind == "" {
		return fmt.Errorf("store: session %s: kind is required", session.ID)
	}

	// objects in memdb must never be mutated after insert
	stored := session
	tx := m.db.Txn(true)
	if err := tx.Insert(sessionsTable, &stored); err != nil {
		tx.Abort()
		return fmt.Errorf("store: session %s: insert failed: %w", session.ID, err)
	}
	tx.Commit()

	m.notifySubscribers(session)
	return nil
}

// Get returns the session with the given ID.
func (m *MemDBStore) Get(id string) (Session, bool) {
	return m.first("id", id)
}

// ByHandle returns the session observing the given job handle.
func (m *MemDBStore) ByHandle(handle string) (Session, bool) {
	if handle == "" {
		return Session{}, false
	}
	return m.first("handle", handle)
}

// ByKind returns all sessions of the given job kind, oldest first.
func (m *MemDBStore) ByKind(kind string) []Session {
	return m.list("kind", kind)
}

// GetAll returns a snapshot of all stored sessions, oldest first.
func (m *MemDBStore) GetAll() []Session {
	return m.list("id")
}

func (m *MemDBStore) first(index string, value string) (Session, bool) {
	tx := m.db.Txn(false)
	defer tx.Abort()

	raw, err := tx.First(sessionsTable, index, value)
	if err != nil || raw == nil {
		return Session{}, false
	}
	return *raw.(*Session), true
}

func (m *MemDBStore) list(index string, args ...interface{}) []Session {
	tx := m.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get(sessionsTable, index, args...)
	if err != nil {
		return []Session{}
	}

	sessions := []Session{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		sessions = append(sessions, *raw.(*Session))
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemDBStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemDBStore) Subscribe() <-chan Session {
	ch := make(chan Session, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemDBStore) Unsubscribe(ch <-chan Session) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the session to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the message
// is dropped for that subscriber rather than blocking the update path.
func (m *MemDBStore) notifySubscribers(session Session) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- session:
		default:
			// subscriber is slow, drop the message
		}
	}
}
