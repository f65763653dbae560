// Package cache is the durable mirror of the last successfully reconciled
// ledger state. Each collection is one envelope in the key/value medium,
// stamped with its write time and replaced wholesale on every write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/kv"
	"token-ledger-client/internal/observability"
)

// DefaultMaxAge is the staleness threshold. Entries older than this are
// discarded wholesale, never served.
const DefaultMaxAge = 24 * time.Hour

// ErrAbsent is returned when a collection has no usable cached entry,
// whether missing, expired, or purged after corruption.
var ErrAbsent = errors.New("cache entry absent")

// CorruptionError reports a stored payload that failed to parse. The entry
// is purged before the error is returned; callers treat it as cache-absent.
type CorruptionError struct {
	Collection domain.Collection
	Err        error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt cache entry %q: %v", e.Collection, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// envelope is the stored form of one collection snapshot.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	WrittenAt int64           `json:"writtenAtMillis"`
}

// Store reads and writes collection snapshots through a kv.Store.
type Store struct {
	kv      kv.Store
	maxAge  time.Duration
	now     func() time.Time
	logger  *log.Logger
	metrics *observability.Metrics
}

// Option configures Store.
type Option func(*Store)

// WithMaxAge overrides the staleness threshold.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables expiry counting.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a cache store over medium.
func NewStore(medium kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     medium,
		maxAge: DefaultMaxAge,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func entryKey(col domain.Collection) string {
	return "cache:" + string(col)
}

// Read unmarshals the cached snapshot for col into out and returns its age.
// Returns ErrAbsent when there is no entry or the entry exceeded the
// staleness threshold (expired entries are purged, never served).
// A payload that fails to parse is purged and reported as *CorruptionError.
func (s *Store) Read(ctx context.Context, col domain.Collection, out interface{}) (time.Duration, error) {
	raw, err := s.kv.Get(ctx, entryKey(col))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, ErrAbsent
		}
		return 0, fmt.Errorf("read cache %s: %w", col, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.purgeCorrupt(ctx, col)
		return 0, &CorruptionError{Collection: col, Err: err}
	}

	age := s.now().Sub(time.UnixMilli(env.WrittenAt))
	if age >= s.maxAge {
		if err := s.Purge(ctx, col); err != nil {
			s.logger.Printf("[cache] purge expired %s: %v", col, err)
		}
		if s.metrics != nil {
			s.metrics.CacheExpiries.WithLabelValues(string(col)).Inc()
		}
		return 0, ErrAbsent
	}

	if err := json.Unmarshal(env.Payload, out); err != nil {
		s.purgeCorrupt(ctx, col)
		return 0, &CorruptionError{Collection: col, Err: err}
	}
	return age, nil
}

// Write replaces the snapshot for col and stamps the current time.
func (s *Store) Write(ctx context.Context, col domain.Collection, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", col, err)
	}

	env := envelope{Payload: raw, WrittenAt: s.now().UnixMilli()}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache envelope %s: %w", col, err)
	}

	if err := s.kv.Set(ctx, entryKey(col), string(data)); err != nil {
		return fmt.Errorf("write cache %s: %w", col, err)
	}
	return nil
}

// Purge removes the entry for col.
func (s *Store) Purge(ctx context.Context, col domain.Collection) error {
	if err := s.kv.Remove(ctx, entryKey(col)); err != nil {
		return fmt.Errorf("purge cache %s: %w", col, err)
	}
	return nil
}

// PurgeAll removes every collection entry. Used on logout.
func (s *Store) PurgeAll(ctx context.Context) error {
	for _, col := range domain.Collections() {
		if err := s.Purge(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) purgeCorrupt(ctx context.Context, col domain.Collection) {
	if err := s.Purge(ctx, col); err != nil {
		s.logger.Printf("[cache] purge corrupt %s: %v", col, err)
	}
}
