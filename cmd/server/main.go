// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carebridge.
//
// carebridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/carebridge/internal/auth"
	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/rest"
	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/logging"
	"github.com/carebridge/carebridge/pkg/metrics"
	"github.com/carebridge/carebridge/pkg/passhash"
	"github.com/carebridge/carebridge/pkg/pingate"
	"github.com/carebridge/carebridge/pkg/ratelimit"
	"github.com/carebridge/carebridge/pkg/session"
	"github.com/carebridge/carebridge/pkg/storage"
	"github.com/carebridge/carebridge/pkg/storage/file"
	"github.com/carebridge/carebridge/pkg/webauthn"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("carebridge auth server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("CAREBRIDGE_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting carebridge auth server",
		"config", *configPath,
		"version", version,
		"storage", cfg.Storage.Backend,
		"port", cfg.Server.Port)

	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	server, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err.Error())
		os.Exit(1)
	}
	defer cleanup()

	shutdownCtx := setupSignalHandler(logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Server started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", "error", err.Error())
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// buildServer wires the storage backend and services into a REST
// server. The returned cleanup stops background workers.
func buildServer(cfg *config.Config, logger *logging.Logger) (*rest.Server, func(), error) {
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "file":
		var err error
		backend, err = file.New(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file storage: %w", err)
		}
	default:
		backend = storage.NewMemory()
	}

	st := store.New(backend)

	hasher, err := passhash.NewHasher(passhash.DefaultParams())
	if err != nil {
		return nil, nil, err
	}

	authSvc, err := auth.NewService(st, hasher)
	if err != nil {
		return nil, nil, err
	}

	passkeys, err := webauthn.NewService(&cfg.RelyingParty, st)
	if err != nil {
		return nil, nil, err
	}

	sessions, err := session.NewManager(&session.Config{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Production: cfg.Production,
	}, backend)
	if err != nil {
		return nil, nil, err
	}

	pinCfg := cfg.EmergencyPin
	pinCfg.Production = cfg.Production
	pins, err := pingate.New(&pinCfg, hasher, st)
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.New(&cfg.RateLimit)

	// Sweep expired session records hourly.
	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed, err := sessions.Cleanup(); err != nil {
					logger.Warn("Session cleanup failed", "error", err.Error())
				} else if removed > 0 {
					logger.Debug("Removed expired sessions", "count", removed)
				}
			case <-cleanupStop:
				return
			}
		}
	}()

	server, err := rest.NewServer(&rest.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Origins:  cfg.RelyingParty.RPOrigins,
		Auth:     authSvc,
		Passkeys: passkeys,
		Sessions: sessions,
		Pins:     pins,
		Store:    st,
		Limiter:  limiter,
		Logger:   logger,
		Metrics:  cfg.Metrics.Enabled,
	})
	cleanup := func() {
		close(cleanupStop)
		limiter.Stop()
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return server, cleanup, nil
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *logging.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
