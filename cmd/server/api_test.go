package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"token-ledger-client/internal/cache"
	"token-ledger-client/internal/identity"
	"token-ledger-client/internal/kv/memory"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/ledger/stub"
	"token-ledger-client/internal/notify"
	"token-ledger-client/internal/session"
	"token-ledger-client/internal/syncer"
)

// newTestAPI wires the full gateway stack against the stub ledger with an
// authenticated developer session, mirroring the production wiring.
func newTestAPI(t *testing.T) (*api, *stub.Client) {
	t.Helper()

	logger := log.New(logWriter{t}, "[server] ", 0)
	store := memory.NewStore()
	cacheStore := cache.NewStore(store)
	queue := notify.NewQueue(notify.WithLogger(logger))
	t.Cleanup(queue.Close)

	client := stub.NewClient()
	zero := time.Duration(0)
	engine := syncer.New(syncer.Options{
		Cache:       cacheStore,
		Notifier:    queue,
		Logger:      logger,
		SettleDelay: &zero,
	})

	manager := session.NewManager(session.Options{
		Store: store,
		Cache: cacheStore,
		ClientFactory: func(*identity.Identity) ledger.Client {
			return client
		},
		Syncer:   engine,
		Notifier: queue,
		Logger:   logger,
	})
	engine.BindSession(manager)

	if err := manager.Login(context.Background(), session.ModeDeveloper); err != nil {
		t.Fatalf("Developer login failed: %v", err)
	}

	hub := newStreamHub(logger)
	t.Cleanup(hub.closeAll)
	return newAPI(manager, engine, queue, hub, logger), client
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func TestAmountBeyondSafeRangeRejected(t *testing.T) {
	a, client := newTestAPI(t)
	handler := a.routes()

	// 2^53, one past the largest exactly representable JSON integer.
	over := "9007199254740992"
	cases := []struct {
		name string
		path string
		body string
	}{
		{"transfer", "/api/transfer", `{"symbol":"BTC","to":"x","amount":` + over + `}`},
		{"mint", "/api/mint", `{"symbol":"BTC","amount":` + over + `}`},
		{"create", "/api/tokens", `{"name":"Big","symbol":"BIG","total_supply":` + over + `}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400 for oversized amount, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if got := client.CallCount("transfer"); got != 0 {
		t.Errorf("Oversized amounts must never reach the ledger, got %d transfer calls", got)
	}
	if got := client.CallCount("create_token"); got != 0 {
		t.Errorf("Oversized supplies must never reach the ledger, got %d create calls", got)
	}
}

func TestAmountAtSafeBoundaryAccepted(t *testing.T) {
	a, _ := newTestAPI(t)
	handler := a.routes()

	body := `{"name":"Edge","symbol":"EDGE","total_supply":9007199254740991}`
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 at the boundary amount, got %d: %s", rec.Code, rec.Body.String())
	}
}
