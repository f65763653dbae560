package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"token-ledger-client/internal/cache"
	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/identity"
	"token-ledger-client/internal/kv"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/observability"
	"token-ledger-client/internal/principal"
)

// Default timing values.
const (
	DefaultLoginTimeout   = 30 * time.Second
	DefaultVerifyInterval = 5 * time.Minute
)

// Notifier receives user-visible session outcomes.
type Notifier interface {
	Push(message, severity string) string
}

// Syncer is the subset of the sync engine the manager drives: a client
// bind plus the initial full refresh on login, and a reset on logout.
type Syncer interface {
	SetClient(c ledger.Client)
	RefreshAll(ctx context.Context) error
	Reset()
}

// ClientFactory builds a ledger client bound to a credential.
type ClientFactory func(id *identity.Identity) ledger.Client

// Manager owns session state. Only the manager mutates it; every other
// component reads snapshots.
type Manager struct {
	store         kv.Store
	cache         *cache.Store
	provider      Provider // nil disables interactive login and provider checks
	clientFactory ClientFactory
	syncer        Syncer
	notifier      Notifier
	metrics       *observability.Metrics
	logger        *log.Logger

	loginTimeout   time.Duration
	verifyInterval time.Duration

	mu            sync.Mutex
	id            *identity.Identity
	principalText string
	authenticated bool
	exactRestore  bool
}

// Options configures Manager. Store, Cache, ClientFactory and Syncer are
// required.
type Options struct {
	Store         kv.Store
	Cache         *cache.Store
	Provider      Provider
	ClientFactory ClientFactory
	Syncer        Syncer
	Notifier      Notifier
	Metrics       *observability.Metrics
	Logger        *log.Logger

	LoginTimeout   time.Duration // 0 means DefaultLoginTimeout
	VerifyInterval time.Duration // 0 means DefaultVerifyInterval
}

// NewManager creates a Manager with no authenticated session.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	loginTimeout := opts.LoginTimeout
	if loginTimeout == 0 {
		loginTimeout = DefaultLoginTimeout
	}
	verifyInterval := opts.VerifyInterval
	if verifyInterval == 0 {
		verifyInterval = DefaultVerifyInterval
	}

	return &Manager{
		store:          opts.Store,
		cache:          opts.Cache,
		provider:       opts.Provider,
		clientFactory:  opts.ClientFactory,
		syncer:         opts.Syncer,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		logger:         logger,
		loginTimeout:   loginTimeout,
		verifyInterval: verifyInterval,
	}
}

// State returns a read-only snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Principal:     m.principalText,
		Authenticated: m.authenticated,
		ExactRestore:  m.exactRestore,
	}
}

// Principal implements syncer.SessionReader.
func (m *Manager) Principal() (principal.Principal, bool) {
	m.mu.Lock()
	text := m.principalText
	auth := m.authenticated
	m.mu.Unlock()

	if !auth {
		return principal.Principal{}, false
	}
	p, err := principal.Parse(text)
	if err != nil {
		return principal.Principal{}, false
	}
	return p, true
}

// Login establishes an authenticated session. Interactive mode delegates
// to the external provider, bounded by the login timeout; developer mode
// synthesizes a local credential. On success the session is persisted, a
// ledger client is bound and an initial full refresh is triggered (a data
// failure there degrades to a warning, not a login failure). On failure
// session state is left untouched.
func (m *Manager) Login(ctx context.Context, mode Mode) error {
	var (
		id  *identity.Identity
		err error
	)

	switch mode {
	case ModeInteractive:
		if m.provider == nil {
			err = errors.New("no identity provider configured")
			break
		}
		loginCtx, cancel := context.WithTimeout(ctx, m.loginTimeout)
		id, err = m.provider.Login(loginCtx)
		cancel()
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("authentication timeout after %v", m.loginTimeout)
		}
	case ModeDeveloper:
		id, err = identity.Generate()
	default:
		err = fmt.Errorf("unknown login mode %q", mode)
	}

	if err != nil {
		m.countLogin(mode, "error")
		m.pushNotification("Authentication failed: "+err.Error(), domain.SeverityError)
		return &AuthError{Stage: "login", Err: err}
	}

	if err := m.establish(ctx, id, id.Principal().Text(), true); err != nil {
		m.countLogin(mode, "error")
		return &AuthError{Stage: "login", Err: err}
	}

	m.countLogin(mode, "ok")
	m.pushNotification("Authentication successful", domain.SeveritySuccess)
	m.startInitialRefresh(ctx)
	return nil
}

// Restore rebuilds a session from persisted credentials at cold start.
// Returns false when nothing is stored or restoration fails; failure clears
// the persisted credentials. A credential derived from the stored principal
// rarely reproduces it exactly; on mismatch the session proceeds with the
// best-effort credential but is marked as an inexact restore and the
// mismatch is reported, never silently claimed as success.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	flag, err := m.store.Get(ctx, keyAuthenticated)
	if err != nil || flag != "true" {
		return false, nil
	}
	stored, err := m.store.Get(ctx, keyPrincipal)
	if err != nil || stored == "" {
		return false, nil
	}

	id, matched, err := identity.Restore(stored)
	if err != nil {
		m.clearPersisted(ctx)
		m.countRestore("error")
		m.pushNotification("Failed to restore session, please login again", domain.SeverityError)
		return false, &AuthError{Stage: "restore", Err: err}
	}

	if !matched {
		m.logger.Printf("[session] restored principal mismatch: stored %s, derived %s; using stored principal with best-effort credential",
			stored, id.Principal().Text())
	}

	if err := m.establish(ctx, id, stored, matched); err != nil {
		m.clearPersisted(ctx)
		m.countRestore("error")
		return false, &AuthError{Stage: "restore", Err: err}
	}

	m.countRestore(restoreResult(matched))
	m.pushNotification("Session restored successfully", domain.SeveritySuccess)
	m.startInitialRefresh(ctx)
	return true, nil
}

// establish persists and activates a session and binds the ledger client.
func (m *Manager) establish(ctx context.Context, id *identity.Identity, principalText string, exact bool) error {
	if err := m.store.Set(ctx, keyAuthenticated, "true"); err != nil {
		return fmt.Errorf("persist auth flag: %w", err)
	}
	if err := m.store.Set(ctx, keyPrincipal, principalText); err != nil {
		return fmt.Errorf("persist principal: %w", err)
	}

	m.mu.Lock()
	m.id = id
	m.principalText = principalText
	m.authenticated = true
	m.exactRestore = exact
	m.mu.Unlock()

	m.syncer.SetClient(m.clientFactory(id))
	return nil
}

// startInitialRefresh triggers a full refresh; data errors degrade to a
// warning rather than failing the session.
func (m *Manager) startInitialRefresh(ctx context.Context) {
	if err := m.syncer.RefreshAll(ctx); err != nil {
		m.logger.Printf("[session] initial refresh: %v", err)
		m.pushNotification("Authenticated, but there was an issue loading data", domain.SeverityWarning)
	}
}

// Logout revokes the provider session best-effort, clears in-memory and
// persisted session state and purges every cached collection.
func (m *Manager) Logout(ctx context.Context) {
	if m.provider != nil {
		if err := m.provider.Logout(ctx); err != nil {
			// Best effort; local state is cleared regardless.
			m.logger.Printf("[session] provider logout: %v", err)
		}
	}

	m.mu.Lock()
	m.id = nil
	m.principalText = ""
	m.authenticated = false
	m.exactRestore = false
	m.mu.Unlock()

	m.clearPersisted(ctx)
	if err := m.cache.PurgeAll(ctx); err != nil {
		m.logger.Printf("[session] purge cache: %v", err)
	}
	m.syncer.Reset()

	m.pushNotification("Successfully logged out", domain.SeverityInfo)
}

// Verify confirms the persisted credential is still considered valid.
// Developer sessions are valid while the persisted flags are present;
// otherwise the external provider is consulted. On failure the session is
// logged out.
func (m *Manager) Verify(ctx context.Context) bool {
	m.mu.Lock()
	auth := m.authenticated
	m.mu.Unlock()
	if !auth {
		return false
	}

	if flag, err := m.store.Get(ctx, keyAuthenticated); err == nil && flag == "true" {
		if _, err := m.store.Get(ctx, keyPrincipal); err == nil {
			if m.provider == nil {
				return true
			}
			ok, err := m.provider.IsAuthenticated(ctx)
			if err == nil && ok {
				return true
			}
			if err != nil {
				m.logger.Printf("[session] provider check failed: %v", err)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.VerifyFailures.Inc()
	}
	m.pushNotification("Authentication expired. Please login again.", domain.SeverityError)
	m.Logout(ctx)
	return false
}

// RunVerifyLoop re-verifies the session on a fixed cadence for as long as
// the context lives. It blocks until the context is cancelled.
func (m *Manager) RunVerifyLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.verifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			auth := m.authenticated
			m.mu.Unlock()
			if auth {
				m.Verify(ctx)
			}
		}
	}
}

func (m *Manager) clearPersisted(ctx context.Context) {
	if err := m.store.Remove(ctx, keyAuthenticated); err != nil {
		m.logger.Printf("[session] clear auth flag: %v", err)
	}
	if err := m.store.Remove(ctx, keyPrincipal); err != nil {
		m.logger.Printf("[session] clear principal: %v", err)
	}
}

func (m *Manager) pushNotification(message, severity string) {
	if m.notifier != nil {
		m.notifier.Push(message, severity)
	}
}

func (m *Manager) countLogin(mode Mode, result string) {
	if m.metrics != nil {
		m.metrics.LoginsTotal.WithLabelValues(string(mode), result).Inc()
	}
}

func (m *Manager) countRestore(result string) {
	if m.metrics != nil {
		m.metrics.SessionRestores.WithLabelValues(result).Inc()
	}
}

func restoreResult(matched bool) string {
	if matched {
		return "exact"
	}
	return "fallback"
}
