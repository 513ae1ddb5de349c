// Shutterscope API Server
//
// Usage:
//
//	server                        Start the HTTP server
//	server -config server.hcl     Start with a config file
//	server -migrate               Run database migrations and exit
//	server hash-password          Print a bcrypt hash for a user block
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/shutterscope/shutterscope/internal/api"
	"github.com/shutterscope/shutterscope/internal/auth"
	"github.com/shutterscope/shutterscope/internal/cache"
	"github.com/shutterscope/shutterscope/internal/config"
	"github.com/shutterscope/shutterscope/internal/db"
	"github.com/shutterscope/shutterscope/internal/logging"
	"github.com/shutterscope/shutterscope/internal/stats"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const serviceName = "shutterscope-server"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", config.GetString("SHUTTERSCOPE_CONFIG", ""), "Path to HCL config file")
	migrateOnly := flag.Bool("migrate", false, "Run migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, level)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, migrateOnly bool) error {
	ctx := context.Background()

	// Open runs pending migrations before returning.
	store, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", "driver", store.Driver())

	if migrateOnly {
		logger.Info("migration-only mode, exiting")
		return nil
	}

	snapshotCache := openCache(cfg.Cache, logger)
	defer snapshotCache.Close()

	registry := prometheus.NewRegistry()
	statsSvc := stats.NewService(store, snapshotCache, registry, logger)

	users := make([]auth.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, auth.User{Username: u.Name, PasswordHash: u.PasswordHash, Role: u.Role})
	}
	if len(users) == 0 {
		logger.Warn("no users configured; every login will be rejected")
	}
	authSvc := auth.New(cfg.JWTSecret, cfg.TokenTTL, users)

	apiServer := api.NewServer(api.Options{
		Store:             store,
		Stats:             statsSvc,
		Auth:              authSvc,
		Logger:            logger,
		Registry:          registry,
		Version:           Version,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	apiServer.RegisterRuntimeCollectors()
	defer apiServer.Close()

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("shutterscope API server starting", "addr", cfg.Listen, "version", Version, "cache", snapshotCache.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-done:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openCache builds the configured snapshot cache, falling back to memory
// when redis cannot be reached at startup.
func openCache(cfg config.Cache, logger *slog.Logger) cache.SnapshotCache {
	if cfg.Backend != config.CacheRedis {
		return cache.NewMemory(cfg.TTL)
	}
	c, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemory(cfg.TTL)
	}
	return c
}

func hashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return errors.New("password cannot be empty")
	}

	hash, err := auth.HashPassword(string(first))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
