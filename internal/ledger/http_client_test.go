package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"token-ledger-client/internal/identity"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate identity: %v", err)
	}
	return id
}

func rpcOK(t *testing.T, w http.ResponseWriter, id uint64, result interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestHTTPClient_GetTokenList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %s", req.JSONRPC)
		}
		if req.Method != "get_token_list" {
			t.Errorf("expected method get_token_list, got %s", req.Method)
		}

		rpcOK(t, w, req.ID, []map[string]string{
			{"name": "Bitcoin", "symbol": "BTC", "imageUrl": "https://example.com/btc.png"},
			{"name": "Ether", "symbol": "ETH", "imageUrl": ""},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testIdentity(t))

	listings, err := client.GetTokenList(context.Background())
	if err != nil {
		t.Fatalf("GetTokenList: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].Symbol != "BTC" || listings[0].Name != "Bitcoin" {
		t.Errorf("unexpected first listing: %+v", listings[0])
	}
}

func TestHTTPClient_SignsRequests(t *testing.T) {
	id := testIdentity(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}

		if got := r.Header.Get("X-Ledger-Principal"); got != id.Principal().Text() {
			t.Errorf("expected principal header %s, got %s", id.Principal().Text(), got)
		}
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Ledger-Signature"))
		if err != nil {
			t.Fatalf("decode signature: %v", err)
		}
		if !ed25519.Verify(id.PublicKey(), body, sig) {
			t.Error("signature does not verify over the request body")
		}

		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		rpcOK(t, w, req.ID, uint64(42))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, id)

	supply, err := client.TotalSupply(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply != 42 {
		t.Errorf("expected supply 42, got %d", supply)
	}
}

func TestHTTPClient_GetTransactions_NullFrom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		params, ok := req.Params.(map[string]interface{})
		if !ok {
			t.Fatalf("expected params object, got %T", req.Params)
		}
		if params["symbol"] != "BTC" {
			t.Errorf("expected symbol BTC, got %v", params["symbol"])
		}

		rpcOK(t, w, req.ID, []map[string]interface{}{
			{"from": nil, "to": "alice", "amount": 100, "timestamp": 2000},
			{"from": "alice", "to": "bob", "amount": 10, "timestamp": 3000},
		})
	}))
	defer server.Close()

	id := testIdentity(t)
	client := NewHTTPClient(server.URL, id)

	txs, err := client.GetTransactions(context.Background(), "BTC", id.Principal())
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].From != "" {
		t.Errorf("null sender should map to empty From, got %q", txs[0].From)
	}
	if txs[0].Symbol != "BTC" {
		t.Errorf("symbol should be stamped onto transactions, got %q", txs[0].Symbol)
	}
	if txs[1].From != "alice" || txs[1].To != "bob" || txs[1].Amount != 10 {
		t.Errorf("unexpected second transaction: %+v", txs[1])
	}
}

func TestHTTPClient_Transfer(t *testing.T) {
	sender := testIdentity(t)
	recipient := testIdentity(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "transfer" {
			t.Errorf("expected method transfer, got %s", req.Method)
		}
		params := req.Params.(map[string]interface{})
		if params["fromPrincipal"] != sender.Principal().Text() {
			t.Errorf("unexpected fromPrincipal %v", params["fromPrincipal"])
		}
		if params["toPrincipal"] != recipient.Principal().Text() {
			t.Errorf("unexpected toPrincipal %v", params["toPrincipal"])
		}
		rpcOK(t, w, req.ID, true)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, sender)

	ok, err := client.Transfer(context.Background(), "BTC", recipient.Principal(), sender.Principal(), 25)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !ok {
		t.Error("expected transfer accepted")
	}
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		rpcOK(t, w, req.ID, uint64(7))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testIdentity(t),
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)

	supply, err := client.TotalSupply(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("TotalSupply after retries: %v", err)
	}
	if supply != 7 {
		t.Errorf("expected supply 7, got %d", supply)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32000, "message": "unknown symbol"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testIdentity(t),
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)

	_, err := client.TotalSupply(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected error")
	}
	var remote *RemoteCallError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteCallError, got %T", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", got)
	}
}

func TestHTTPClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testIdentity(t),
		WithMaxRetries(1),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := client.TotalSupply(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}
