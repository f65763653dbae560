// Package notify keeps a short-lived, ordered log of user-visible outcomes.
// Entries expire automatically; expiry timers are tracked and released with
// the queue's lifecycle instead of being fire-and-forget.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-ledger-client/internal/domain"
)

// DefaultTTL is how long a notification stays visible unless dismissed.
const DefaultTTL = 5 * time.Second

// Queue is an ephemeral, insertion-ordered notification log.
type Queue struct {
	mu       sync.Mutex
	entries  []domain.Notification
	timers   map[string]*time.Timer
	ttl      time.Duration
	closed   bool
	onChange func()
	logger   *log.Logger
}

// Option configures Queue.
type Option func(*Queue)

// WithTTL overrides the auto-expiry duration.
func WithTTL(d time.Duration) Option {
	return func(q *Queue) {
		q.ttl = d
	}
}

// WithOnChange registers a callback invoked after every queue mutation.
func WithOnChange(fn func()) Option {
	return func(q *Queue) {
		q.onChange = fn
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		timers: make(map[string]*time.Timer),
		ttl:    DefaultTTL,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a notification and schedules its removal after the TTL.
// Returns the assigned id.
func (q *Queue) Push(message, severity string) string {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}

	id := uuid.NewString()
	q.entries = append(q.entries, domain.Notification{
		ID:       id,
		Message:  message,
		Severity: severity,
	})
	q.timers[id] = time.AfterFunc(q.ttl, func() {
		q.Dismiss(id)
	})
	q.mu.Unlock()

	q.notifyChange()
	return id
}

// Dismiss removes a notification early. Dismissing an unknown id is a no-op.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}

	removed := false
	for i, n := range q.entries {
		if n.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			removed = true
			break
		}
	}
	q.mu.Unlock()

	if removed {
		q.notifyChange()
	}
}

// Snapshot returns the visible notifications in insertion order.
func (q *Queue) Snapshot() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Notification, len(q.entries))
	copy(out, q.entries)
	return out
}

// Close stops all pending expiry timers and drops the entries.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.entries = nil
}

func (q *Queue) notifyChange() {
	if q.onChange != nil {
		q.onChange()
	}
}
