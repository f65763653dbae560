// Package main provides the gateway that hosts the client-side state cache
// and sync engine for a presentation layer:
// - HTTP JSON API for every session and sync operation
// - WebSocket state stream notifying subscribers after collection mutations
// - Prometheus metrics listener
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-ledger-client/internal/archive"
	charchive "token-ledger-client/internal/archive/clickhouse"
	"token-ledger-client/internal/cache"
	"token-ledger-client/internal/identity"
	"token-ledger-client/internal/kv"
	kvmemory "token-ledger-client/internal/kv/memory"
	kvpostgres "token-ledger-client/internal/kv/postgres"
	"token-ledger-client/internal/ledger"
	ledgerstub "token-ledger-client/internal/ledger/stub"
	"token-ledger-client/internal/notify"
	"token-ledger-client/internal/observability"
	"token-ledger-client/internal/session"
	"token-ledger-client/internal/syncer"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	ledgerEndpoint := flag.String("ledger-endpoint", os.Getenv("LEDGER_ENDPOINT"), "Ledger service JSON-RPC endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the persistent cache")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the transaction archive (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	useStubLedger := flag.Bool("use-stub-ledger", false, "Use an in-process stub ledger instead of a remote endpoint")
	listenAddr := flag.String("listen", ":8080", "HTTP API listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	settleDelay := flag.Duration("settle-delay", syncer.DefaultSettleDelay, "Delay before post-mutation balance reconciliation")
	cacheMaxAge := flag.Duration("cache-max-age", cache.DefaultMaxAge, "Staleness threshold for cached collections")
	verifyInterval := flag.Duration("verify-interval", session.DefaultVerifyInterval, "Periodic session verification cadence")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useStubLedger && *ledgerEndpoint == "" {
		logger.Fatal("--ledger-endpoint is required (use --use-stub-ledger for local development)")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistent medium
	var medium kv.Store
	if *useMemory {
		medium = kvmemory.NewStore()
		logger.Println("Using in-memory key/value medium")
	} else {
		pool, err := kvpostgres.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		medium, err = kvpostgres.NewStore(ctx, pool)
		if err != nil {
			logger.Fatalf("Failed to init postgres store: %v", err)
		}
		logger.Println("Using PostgreSQL key/value medium")
	}

	// Transaction archive (best-effort sink)
	var txArchive archive.TransactionArchive
	if *clickhouseDSN != "" {
		conn, err := charchive.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to clickhouse: %v", err)
		}
		defer conn.Close()
		txArchive, err = charchive.NewTransactionArchive(ctx, conn)
		if err != nil {
			logger.Fatalf("Failed to init transaction archive: %v", err)
		}
		logger.Println("Transaction archive: ClickHouse")
	} else {
		txArchive = archive.NewMemoryArchive()
		logger.Println("Transaction archive: in-memory")
	}

	metrics := observability.NewMetrics("")
	cacheStore := cache.NewStore(medium,
		cache.WithMaxAge(*cacheMaxAge),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	)

	// Notification queue feeds the state stream alongside engine changes.
	hub := newStreamHub(logger)
	queue := notify.NewQueue(
		notify.WithLogger(logger),
		notify.WithOnChange(func() {
			hub.broadcast(streamEvent{Collection: "notifications"})
		}),
	)
	defer queue.Close()

	engine := syncer.New(syncer.Options{
		Cache:       cacheStore,
		Notifier:    queue,
		Archive:     txArchive,
		Metrics:     metrics,
		Logger:      logger,
		SettleDelay: settleDelay,
	})

	// Ledger client factory: one client per credential.
	var stubLedger *ledgerstub.Client
	if *useStubLedger {
		stubLedger = ledgerstub.NewClient()
	}
	clientFactory := func(id *identity.Identity) ledger.Client {
		if stubLedger != nil {
			return stubLedger
		}
		return ledger.NewHTTPClient(*ledgerEndpoint, id)
	}

	manager := session.NewManager(session.Options{
		Store:          medium,
		Cache:          cacheStore,
		ClientFactory:  clientFactory,
		Syncer:         engine,
		Notifier:       queue,
		Metrics:        metrics,
		Logger:         logger,
		VerifyInterval: *verifyInterval,
	})
	engine.BindSession(manager)

	// Cold start: serve cached collections, then try to restore the session.
	engine.LoadFromCache(ctx)
	if ok, err := manager.Restore(ctx); err != nil {
		logger.Printf("Session restore failed: %v", err)
	} else if ok {
		logger.Printf("Session restored for principal %s", manager.State().Principal)
	}

	// Periodic session verification
	go func() {
		if err := manager.RunVerifyLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("Verify loop stopped: %v", err)
		}
	}()

	// Bridge engine changes into the WebSocket hub.
	changes, cancelSub := engine.Subscribe()
	defer cancelSub()
	go func() {
		for c := range changes {
			hub.broadcast(streamEvent{Collection: string(c.Collection), Revision: c.Revision})
		}
	}()

	// Metrics listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Printf("Metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Printf("Metrics server: %v", err)
		}
	}()

	// API server
	api := newAPI(manager, engine, queue, hub, logger)
	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: api.routes(),
	}
	go func() {
		logger.Printf("API listening on %s", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("API server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API shutdown: %v", err)
	}
	cancel()
	hub.closeAll()
	logger.Println("Shutdown complete")
}

// loadEnvFile loads KEY=VALUE pairs from .env when present.
func loadEnvFile() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
	}
}
