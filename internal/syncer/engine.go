// Package syncer orchestrates refresh of tokens, balances and transactions
// from the ledger client, applies optimistic updates after mutating calls,
// reconciles with authoritative re-fetches, and guarantees single-flight
// refreshes per collection.
package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"token-ledger-client/internal/archive"
	"token-ledger-client/internal/cache"
	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/observability"
	"token-ledger-client/internal/principal"
)

// DefaultSettleDelay is how long the engine waits after a successful
// mutation before issuing the reconciling balance fetch. The remote
// ledger's write visibility is not guaranteed to be immediate.
const DefaultSettleDelay = 500 * time.Millisecond

// SessionReader exposes the authenticated principal to the engine.
// Only the session manager mutates session state.
type SessionReader interface {
	// Principal returns the current principal and whether a session is
	// authenticated.
	Principal() (principal.Principal, bool)
}

// Notifier receives user-visible outcomes. Implemented by notify.Queue.
type Notifier interface {
	Push(message, severity string) string
}

// Change is delivered to subscribers after any collection mutation.
type Change struct {
	Collection domain.Collection
	Revision   uint64
}

// Engine is the client-side state machine. The cached collections are
// process-wide singletons readable by any component; every mutation funnels
// through the engine so optimistic patches and refresh results never race
// to produce a torn state.
type Engine struct {
	cache    *cache.Store
	session  SessionReader
	notifier Notifier
	archive  archive.TransactionArchive
	metrics  *observability.Metrics
	logger   *log.Logger

	settleDelay time.Duration

	mu           sync.Mutex
	client       ledger.Client
	tokens       []domain.Token
	balances     domain.BalanceTable
	transactions []domain.Transaction
	inFlight     map[domain.Collection]bool
	allInFlight  bool
	revision     uint64

	subMu       sync.Mutex
	subscribers map[int]chan Change
	nextSubID   int
}

// Options configures Engine. Cache and Session are required.
type Options struct {
	Cache       *cache.Store
	Session     SessionReader
	Notifier    Notifier
	Archive     archive.TransactionArchive // optional, best-effort
	Metrics     *observability.Metrics     // optional
	Logger      *log.Logger
	SettleDelay *time.Duration // nil means DefaultSettleDelay
}

// New creates an Engine with empty collections.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	settleDelay := DefaultSettleDelay
	if opts.SettleDelay != nil {
		settleDelay = *opts.SettleDelay
	}

	return &Engine{
		cache:       opts.Cache,
		session:     opts.Session,
		notifier:    opts.Notifier,
		archive:     opts.Archive,
		metrics:     opts.Metrics,
		logger:      logger,
		settleDelay: settleDelay,
		balances:    make(domain.BalanceTable),
		inFlight:    make(map[domain.Collection]bool),
		subscribers: make(map[int]chan Change),
	}
}

// BindSession attaches the session reader. The session manager and the
// engine reference each other, so one side binds after construction.
func (e *Engine) BindSession(s SessionReader) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

// sessionPrincipal reads the authenticated principal, if any.
func (e *Engine) sessionPrincipal() (principal.Principal, bool) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return principal.Principal{}, false
	}
	return s.Principal()
}

// SetClient binds the ledger client for the authenticated session.
func (e *Engine) SetClient(c ledger.Client) {
	e.mu.Lock()
	e.client = c
	e.mu.Unlock()
}

// Reset clears all in-memory collections. Used on logout; the cache is
// purged separately by the session manager.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.client = nil
	e.tokens = nil
	e.balances = make(domain.BalanceTable)
	e.transactions = nil
	e.revision++
	revs := e.revision
	e.mu.Unlock()

	for _, col := range domain.Collections() {
		e.publish(Change{Collection: col, Revision: revs})
	}
}

// Tokens returns a copy of the token collection.
func (e *Engine) Tokens() []domain.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Token, len(e.tokens))
	copy(out, e.tokens)
	return out
}

// Balances returns a copy of the balance table.
func (e *Engine) Balances() domain.BalanceTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances.Clone()
}

// Transactions returns a copy of the transaction collection,
// ordered by timestamp descending.
func (e *Engine) Transactions() []domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Transaction, len(e.transactions))
	copy(out, e.transactions)
	return out
}

// Subscribe registers a change listener. The returned cancel function
// releases it. Events are dropped, not queued, when the subscriber lags.
func (e *Engine) Subscribe() (<-chan Change, func()) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Change, 16)
	e.subscribers[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if c, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(c)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) publish(c Change) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, ch := range e.subscribers {
		select {
		case ch <- c:
		default:
			// Slow subscriber: drop rather than block the mutation path.
		}
	}
}

// LoadFromCache serves previously cached collections at cold start, before
// any authentication. Absent, expired and corrupt entries are skipped; the
// cache store purges the latter two itself.
func (e *Engine) LoadFromCache(ctx context.Context) {
	var tokens []domain.Token
	if _, err := e.cache.Read(ctx, domain.CollectionTokens, &tokens); err == nil {
		e.setTokens(ctx, tokens, false)
	} else {
		e.noteCacheMiss(domain.CollectionTokens, err)
	}

	balances := make(domain.BalanceTable)
	if _, err := e.cache.Read(ctx, domain.CollectionBalances, &balances); err == nil {
		e.setBalances(ctx, balances, false)
	} else {
		e.noteCacheMiss(domain.CollectionBalances, err)
	}

	var txs []domain.Transaction
	if _, err := e.cache.Read(ctx, domain.CollectionTransactions, &txs); err == nil {
		domain.SortTransactions(txs)
		e.setTransactions(ctx, txs, false)
	} else {
		e.noteCacheMiss(domain.CollectionTransactions, err)
	}
}

func (e *Engine) noteCacheMiss(col domain.Collection, err error) {
	if errors.Is(err, cache.ErrAbsent) {
		return
	}
	var corrupt *cache.CorruptionError
	if errors.As(err, &corrupt) {
		e.logger.Printf("[syncer] cache entry %s corrupt, purged: %v", col, corrupt.Err)
		if e.metrics != nil {
			e.metrics.CacheCorruption.WithLabelValues(string(col)).Inc()
		}
		return
	}
	e.logger.Printf("[syncer] cache read %s: %v", col, err)
}

// setTokens replaces the token collection and optionally writes through.
func (e *Engine) setTokens(ctx context.Context, tokens []domain.Token, writeThrough bool) {
	e.mu.Lock()
	e.tokens = tokens
	e.revision++
	rev := e.revision
	e.mu.Unlock()

	if writeThrough {
		if err := e.cache.Write(ctx, domain.CollectionTokens, tokens); err != nil {
			e.logger.Printf("[syncer] write tokens cache: %v", err)
		}
	}
	e.publish(Change{Collection: domain.CollectionTokens, Revision: rev})
}

func (e *Engine) setBalances(ctx context.Context, balances domain.BalanceTable, writeThrough bool) {
	e.mu.Lock()
	e.balances = balances
	e.revision++
	rev := e.revision
	e.mu.Unlock()

	if writeThrough {
		if err := e.cache.Write(ctx, domain.CollectionBalances, balances); err != nil {
			e.logger.Printf("[syncer] write balances cache: %v", err)
		}
	}
	e.publish(Change{Collection: domain.CollectionBalances, Revision: rev})
}

// patchBalance updates a single entry in place and writes through.
func (e *Engine) patchBalance(ctx context.Context, symbol string, amount uint64) {
	e.mu.Lock()
	updated := e.balances.Clone()
	if updated == nil {
		updated = make(domain.BalanceTable)
	}
	updated[symbol] = amount
	e.balances = updated
	e.revision++
	rev := e.revision
	e.mu.Unlock()

	if err := e.cache.Write(ctx, domain.CollectionBalances, updated); err != nil {
		e.logger.Printf("[syncer] write balances cache: %v", err)
	}
	e.publish(Change{Collection: domain.CollectionBalances, Revision: rev})
}

func (e *Engine) setTransactions(ctx context.Context, txs []domain.Transaction, writeThrough bool) {
	e.mu.Lock()
	e.transactions = txs
	e.revision++
	rev := e.revision
	e.mu.Unlock()

	if writeThrough {
		if err := e.cache.Write(ctx, domain.CollectionTransactions, txs); err != nil {
			e.logger.Printf("[syncer] write transactions cache: %v", err)
		}
	}
	e.publish(Change{Collection: domain.CollectionTransactions, Revision: rev})
}

// currentClient returns the bound client or ErrNoClient.
func (e *Engine) currentClient() (ledger.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, ErrNoClient
	}
	return e.client, nil
}

// tryBegin marks a collection refresh in flight. Returns false when one is
// already running; the caller is a no-op observer, not a queued retry.
func (e *Engine) tryBegin(col domain.Collection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[col] {
		if e.metrics != nil {
			e.metrics.RefreshesCoalesced.WithLabelValues(string(col)).Inc()
		}
		return false
	}
	e.inFlight[col] = true
	if e.metrics != nil {
		e.metrics.RefreshInFlight.WithLabelValues(string(col)).Set(1)
		e.metrics.RefreshesStarted.WithLabelValues(string(col)).Inc()
	}
	return true
}

func (e *Engine) end(col domain.Collection) {
	e.mu.Lock()
	e.inFlight[col] = false
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RefreshInFlight.WithLabelValues(string(col)).Set(0)
	}
}

func (e *Engine) notify(message, severity string) {
	if e.notifier != nil {
		e.notifier.Push(message, severity)
	}
	if e.metrics != nil {
		e.metrics.NotificationsPushed.WithLabelValues(severity).Inc()
	}
}

// settle waits the configured settling delay, honoring cancellation.
func (e *Engine) settle(ctx context.Context) error {
	if e.settleDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.settleDelay):
		return nil
	}
}
