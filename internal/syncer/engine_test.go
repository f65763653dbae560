package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"token-ledger-client/internal/cache"
	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/identity"
	"token-ledger-client/internal/kv/memory"
	"token-ledger-client/internal/ledger/stub"
	"token-ledger-client/internal/principal"
)

// fakeSession satisfies SessionReader with a fixed principal.
type fakeSession struct {
	mu   sync.Mutex
	p    principal.Principal
	auth bool
}

func (f *fakeSession) Principal() (principal.Principal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p, f.auth
}

func (f *fakeSession) set(p principal.Principal, auth bool) {
	f.mu.Lock()
	f.p = p
	f.auth = auth
	f.mu.Unlock()
}

// recordingNotifier captures pushed notifications for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	entries []domain.Notification
}

func (r *recordingNotifier) Push(message, severity string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, domain.Notification{Message: message, Severity: severity})
	return ""
}

func (r *recordingNotifier) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *recordingNotifier) contains(message string) bool {
	for _, n := range r.all() {
		if n.Message == message {
			return true
		}
	}
	return false
}

type testRig struct {
	engine   *Engine
	ledger   *stub.Client
	session  *fakeSession
	notifier *recordingNotifier
	cache    *cache.Store
	id       *identity.Identity
}

// newTestRig wires an engine against an in-memory cache and stub ledger,
// with the settling delay removed and an authenticated session.
func newTestRig(t *testing.T) *testRig {
	t.Helper()

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate identity failed: %v", err)
	}

	store := cache.NewStore(memory.NewStore())
	session := &fakeSession{}
	session.set(id.Principal(), true)
	notifier := &recordingNotifier{}
	client := stub.NewClient()

	zero := time.Duration(0)
	engine := New(Options{
		Cache:       store,
		Session:     session,
		Notifier:    notifier,
		SettleDelay: &zero,
	})
	engine.SetClient(client)

	return &testRig{
		engine:   engine,
		ledger:   client,
		session:  session,
		notifier: notifier,
		cache:    store,
		id:       id,
	}
}

// seedToken creates a token on the stub ledger owned by the rig's identity.
func (r *testRig) seedToken(t *testing.T, symbol string, supply uint64) {
	t.Helper()
	ok, err := r.ledger.CreateToken(context.Background(), r.id.Principal(), symbol+" Token", symbol, "", supply)
	if err != nil || !ok {
		t.Fatalf("Seed token %s failed: ok=%v err=%v", symbol, ok, err)
	}
}

func TestLoadFromCacheColdStart(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	tokens := []domain.Token{{Symbol: "BTC", Name: "Bitcoin", TotalSupply: 1000000}}
	if err := rig.cache.Write(ctx, domain.CollectionTokens, tokens); err != nil {
		t.Fatalf("Seed tokens cache failed: %v", err)
	}
	if err := rig.cache.Write(ctx, domain.CollectionBalances, domain.BalanceTable{"BTC": 250}); err != nil {
		t.Fatalf("Seed balances cache failed: %v", err)
	}

	rig.engine.LoadFromCache(ctx)

	got := rig.engine.Tokens()
	if len(got) != 1 || got[0].Symbol != "BTC" {
		t.Errorf("Expected cached tokens served, got %+v", got)
	}
	if rig.engine.Balances()["BTC"] != 250 {
		t.Errorf("Expected cached balance 250, got %d", rig.engine.Balances()["BTC"])
	}
	if rig.ledger.CallCount("get_token_list") != 0 {
		t.Error("Cold start must not touch the ledger")
	}
}

func TestLoadFromCacheSkipsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	medium := memory.NewStore()
	store := cache.NewStore(medium)
	rig.engine.cache = store

	if err := medium.Set(ctx, "cache:tokens", "{broken"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Write(ctx, domain.CollectionBalances, domain.BalanceTable{"ETH": 7}); err != nil {
		t.Fatalf("Seed balances failed: %v", err)
	}

	rig.engine.LoadFromCache(ctx)

	if len(rig.engine.Tokens()) != 0 {
		t.Error("Corrupt token entry must not populate the collection")
	}
	if rig.engine.Balances()["ETH"] != 7 {
		t.Error("Healthy balances entry should still be served")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.seedToken(t, "BTC", 1000)

	ch, cancel := rig.engine.Subscribe()
	defer cancel()

	if err := rig.engine.RefreshTokens(ctx); err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}

	select {
	case c := <-ch:
		if c.Collection != domain.CollectionTokens {
			t.Errorf("Expected tokens change, got %s", c.Collection)
		}
		if c.Revision == 0 {
			t.Error("Revision should advance past zero")
		}
	case <-time.After(time.Second):
		t.Fatal("No change event delivered")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	rig := newTestRig(t)

	ch, cancel := rig.engine.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("Channel should be closed after cancel")
	}
	// A second cancel must be safe.
	cancel()
}

func TestResetClearsCollections(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.seedToken(t, "BTC", 1000)

	if err := rig.engine.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if len(rig.engine.Tokens()) == 0 {
		t.Fatal("Expected tokens before reset")
	}

	rig.engine.Reset()

	if len(rig.engine.Tokens()) != 0 {
		t.Error("Tokens should be empty after reset")
	}
	if len(rig.engine.Balances()) != 0 {
		t.Error("Balances should be empty after reset")
	}
	if len(rig.engine.Transactions()) != 0 {
		t.Error("Transactions should be empty after reset")
	}
	if err := rig.engine.RefreshTokens(ctx); err != ErrNoClient {
		t.Errorf("Expected ErrNoClient after reset, got %v", err)
	}
}
