package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lateral/engine/internal/config"
	"lateral/engine/internal/engine"
	"lateral/engine/internal/mcpserver"
	"lateral/engine/internal/pathmemory"
	"lateral/engine/internal/registry"
	"lateral/engine/internal/storage"
	"lateral/engine/internal/techniques"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.SQLiteStore
	if cfg.Storage.Driver == "sqlite" {
		store, err = storage.NewSQLiteStore(ctx, cfg.Storage.DSN)
		if err != nil {
			log.Fatalf("opening storage: %v", err)
		}
		defer store.Close()
	}

	reg := registry.New(registry.Limits{
		MaxTrackedSessions:  cfg.Session.MaxTrackedSessions,
		IdleExpiry:          cfg.Session.IdleExpiry,
		MaxParallelSessions: cfg.Session.MaxParallelSessions,
	}, storeOrNil(store))

	techReg := techniques.NewDefaultRegistry()
	eng := engine.New(cfg, reg, techReg, pathStoreOrNil(store), nil)
	srv := mcpserver.New(eng, mcpserver.NewPersistenceAdapter(reg))

	httpAddr := os.Getenv("RUNNER_MCP_HTTP_ADDR")
	if httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcpserver.HTTPHandler(srv))
		server := &http.Server{Addr: httpAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = server.Shutdown(context.Background())
		}()
		log.Printf("lateral-thinking MCP HTTP listening on %s", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
		return
	}

	log.Printf("lateral-thinking MCP serving over stdio")
	if err := mcpserver.ServeStdio(ctx, srv, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// storeOrNil returns nil through the registry.Store interface when store
// is a nil *storage.SQLiteStore, so a typed-nil pointer never satisfies
// the interface with a non-nil value.
func storeOrNil(store *storage.SQLiteStore) registry.Store {
	if store == nil {
		return nil
	}
	return store
}

func pathStoreOrNil(store *storage.SQLiteStore) pathmemory.Store {
	if store == nil {
		return nil
	}
	return store
}
