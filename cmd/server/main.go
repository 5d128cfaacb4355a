/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tablet pool reservation server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config
  2. Initialize SQLite store and seed the device pool
  3. Build the reservation engine and overlay stored policy settings
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (optional; defaults apply without it)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (60 devices, ./data/tabletpool.db)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Run with in-memory database on another port
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Config structure and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/chalkline/tabletpool/api"
	"github.com/chalkline/tabletpool/config"
	"github.com/chalkline/tabletpool/reserve"
	"github.com/chalkline/tabletpool/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	// Config
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize store
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SeedDevices(ctx, cfg.Pool.Size); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed device pool")
	}

	// Build the engine
	blocks, err := cfg.BlockSet()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid block schedule")
	}
	engine := reserve.NewEngine(store, reserve.NewPool(cfg.Pool.Size), blocks, cfg.ReservePolicy())

	// Stored settings override the config's policy knobs.
	if err := api.ApplyStoredPolicy(ctx, store, engine); err != nil {
		logger.Warn().Err(err).Msg("ignoring stored policy settings")
	}

	// Initialize handler and router
	cache := gocache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)
	handler := api.NewHandler(engine, store, cache, logger)
	router := api.NewRouter(handler, api.Options{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimitPerSec:    cfg.Server.RateLimitPerSec,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		CacheTTL:           cfg.Server.CacheTTL,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Int("port", cfg.Server.Port).
			Int("pool_size", cfg.Pool.Size).
			Str("db", cfg.Database.Path).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
