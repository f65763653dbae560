package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/notify"
	"token-ledger-client/internal/session"
	"token-ledger-client/internal/syncer"
)

// maxSafeAmount is the largest amount a browser JSON consumer can
// represent without losing integer precision (2^53 - 1).
const maxSafeAmount = 1<<53 - 1

// api exposes session and sync operations as a JSON HTTP surface.
type api struct {
	manager *session.Manager
	engine  *syncer.Engine
	queue   *notify.Queue
	hub     *streamHub
	logger  *log.Logger
}

func newAPI(manager *session.Manager, engine *syncer.Engine, queue *notify.Queue, hub *streamHub, logger *log.Logger) *api {
	return &api{
		manager: manager,
		engine:  engine,
		queue:   queue,
		hub:     hub,
		logger:  logger,
	}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", a.requireMethod(http.MethodPost, a.handleLogin))
	mux.HandleFunc("/api/logout", a.requireMethod(http.MethodPost, a.handleLogout))
	mux.HandleFunc("/api/session", a.requireMethod(http.MethodGet, a.handleSession))

	mux.HandleFunc("/api/tokens", a.handleTokens)
	mux.HandleFunc("/api/balances", a.requireMethod(http.MethodGet, a.handleBalances))
	mux.HandleFunc("/api/transactions", a.requireMethod(http.MethodGet, a.handleTransactions))

	mux.HandleFunc("/api/refresh", a.requireMethod(http.MethodPost, a.handleRefresh))
	mux.HandleFunc("/api/balances/refresh", a.requireMethod(http.MethodPost, a.handleRefreshBalance))

	mux.HandleFunc("/api/transfer", a.requireMethod(http.MethodPost, a.handleTransfer))
	mux.HandleFunc("/api/mint", a.requireMethod(http.MethodPost, a.handleMint))

	mux.HandleFunc("/api/notifications", a.requireMethod(http.MethodGet, a.handleNotifications))
	mux.HandleFunc("/api/notifications/", a.requireMethod(http.MethodDelete, a.handleDismiss))

	mux.HandleFunc("/ws/state", a.hub.handle)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

func (a *api) requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := session.Mode(req.Mode)
	if mode == "" {
		mode = session.ModeInteractive
	}
	if mode != session.ModeInteractive && mode != session.ModeDeveloper {
		a.writeError(w, http.StatusBadRequest, "unknown login mode")
		return
	}

	if err := a.manager.Login(r.Context(), mode); err != nil {
		a.writeOperationError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.manager.State())
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.manager.Logout(r.Context())
	a.writeJSON(w, http.StatusOK, a.manager.State())
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.manager.State())
}

// handleTokens serves the token collection on GET and creates a token on POST.
func (a *api) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.writeJSON(w, http.StatusOK, a.engine.Tokens())
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Symbol      string `json:"symbol"`
			ImageURL    string `json:"image_url"`
			TotalSupply uint64 `json:"total_supply"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !a.amountInRange(w, req.TotalSupply) {
			return
		}
		if err := a.engine.CreateToken(r.Context(), req.Name, req.Symbol, req.ImageURL, req.TotalSupply); err != nil {
			a.writeOperationError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]string{"symbol": req.Symbol})
	default:
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *api) handleBalances(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.Balances())
}

func (a *api) handleTransactions(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	txs := a.engine.Transactions()
	if symbol != "" {
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.Symbol == symbol {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	a.writeJSON(w, http.StatusOK, txs)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.RefreshAll(r.Context()); err != nil {
		a.writeOperationError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (a *api) handleRefreshBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		a.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if err := a.engine.RefreshBalance(r.Context(), req.Symbol); err != nil {
		a.writeOperationError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]uint64{req.Symbol: a.engine.Balances()[req.Symbol]})
}

func (a *api) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !a.amountInRange(w, req.Amount) {
		return
	}
	if err := a.engine.Transfer(r.Context(), req.Symbol, req.To, req.Amount); err != nil {
		a.writeOperationError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]uint64{req.Symbol: a.engine.Balances()[req.Symbol]})
}

func (a *api) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !a.amountInRange(w, req.Amount) {
		return
	}
	if err := a.engine.Mint(r.Context(), req.Symbol, req.Amount); err != nil {
		a.writeOperationError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]uint64{req.Symbol: a.engine.Balances()[req.Symbol]})
}

func (a *api) handleNotifications(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.queue.Snapshot())
}

func (a *api) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, "notification id is required")
		return
	}
	a.queue.Dismiss(id)
	w.WriteHeader(http.StatusNoContent)
}

// amountInRange rejects amounts a JSON consumer would round. Returns
// false after writing the error response.
func (a *api) amountInRange(w http.ResponseWriter, amount uint64) bool {
	if amount > maxSafeAmount {
		a.writeError(w, http.StatusBadRequest, "amount exceeds the maximum safe value")
		return false
	}
	return true
}

// writeOperationError maps engine and session errors to HTTP status codes.
func (a *api) writeOperationError(w http.ResponseWriter, err error) {
	var validation *syncer.ValidationError
	var auth *session.AuthError
	var remote *ledger.RemoteCallError

	switch {
	case errors.As(err, &validation):
		a.writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, syncer.ErrNotAuthenticated), errors.Is(err, syncer.ErrNoClient):
		a.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &auth):
		a.writeError(w, http.StatusUnauthorized, auth.Error())
	case errors.As(err, &remote):
		a.writeError(w, http.StatusBadGateway, remote.Error())
	default:
		a.logger.Printf("API internal error: %v", err)
		a.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Printf("Encode response: %v", err)
	}
}

func (a *api) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
