// Command queryserver runs the read-only module-tracker diagnostics HTTP
// surface standalone, rebuilding an eager tracker over the configured
// search roots on startup. It is a diagnostics aid for humans and test
// harnesses, not the analysis query wire protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"buildtrack/internal/config"
	"buildtrack/internal/modulepath"
	"buildtrack/internal/moduletracker"
	"buildtrack/internal/queryserver"
)

func main() {
	configPath := flag.String("config", "buildtrack.yaml", "Path to the YAML config file")
	addr := flag.String("addr", "", "Override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	listenAddr := cfg.QueryServer.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	if listenAddr == "" {
		listenAddr = "127.0.0.1:8787"
	}

	roots := make([]modulepath.SearchRoot, len(cfg.SearchRoots))
	for i, r := range cfg.SearchRoots {
		abs, err := filepath.Abs(r.Dir)
		if err != nil {
			log.Fatalf("invalid search root %q: %v", r.Dir, err)
		}
		roots[i] = modulepath.SearchRoot{Index: i, Dir: abs, SkipTypeCheck: r.NoTypeCheck}
	}
	if len(roots) == 0 {
		log.Fatal("config names no search_roots")
	}

	finder := &modulepath.Finder{Roots: roots}
	ef, err := modulepath.NewEagerFinder(finder)
	if err != nil {
		log.Fatalf("crawl search roots: %v", err)
	}
	tracker := moduletracker.NewEagerTracker(ef, nil)

	app := queryserver.NewApp(tracker).WithAllowedOrigins(cfg.QueryServer.AllowedOrigins)
	if cfg.SharedStorePath != "" {
		withStore, err := app.WithSharedStore(cfg.SharedStorePath)
		if err != nil {
			log.Fatalf("open shared store %q: %v", cfg.SharedStorePath, err)
		}
		app = withStore
	}
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("queryserver listening on http://%s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		os.Exit(1)
	}
}
