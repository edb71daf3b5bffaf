// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package server wires configuration, storage, the verification
// services and the HTTP surface together and runs the process.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/database"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/handlers"
	"codeberg.org/mkadlec/gatekeeper/internal/i18n"
	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"codeberg.org/mkadlec/gatekeeper/internal/services/audit"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
	"codeberg.org/mkadlec/gatekeeper/internal/services/verify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/wave"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

const housekeepingInterval = 10 * time.Minute

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"callback_url", cfg.CallbackURL(),
	)

	// Database (migrations run inside Open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Services. The platform gateway is a no-op here; the bot
	// collaborator embeds this package and injects a live one.
	repo := repository.New(db)
	m := metrics.New()
	gw := gateway.Noop{}

	tokens := token.New(repo, &cfg.Token, cfg.Provider.LoginURL, cfg.CallbackURL())
	notifier := notify.New(gw, &cfg.SMTP)
	verifier := verify.New(verify.Params{
		Repo:      repo,
		Tokens:    tokens,
		Validator: cas.New(&cfg.Provider),
		Gateway:   gw,
		Audit:     audit.New(repo),
		Notifier:  notifier,
		Metrics:   m,
		Roles:     &cfg.Roles,
	})
	waves := wave.New(repo, gw, tokens, notifier, &cfg.Wave)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	setupMiddleware(e, cfg, m)

	// Routes
	setupRoutes(e, handlers.New(verifier, m), m)

	// Background housekeeping
	stopHousekeeping := startHousekeeping(tokens, waves, m)
	defer stopHousekeeping()

	// Start server
	return startWithGracefulShutdown(e, cfg)
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers, m *metrics.Metrics) {
	// One limiter across both paths so the alias shares the budget.
	limiter := callbackRateLimiter()

	e.GET("/health", h.Health)
	e.GET("/", h.Home)
	e.GET("/auth/callback", h.Callback, limiter)
	e.GET("/callback", h.Callback, limiter)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// startHousekeeping runs the periodic background work: expired-token
// purge, the outstanding-token gauge and the wave notification and
// reminder sweeps. The returned func stops the loop and waits for the
// current sweep to finish.
func startHousekeeping(tokens *token.Store, waves *wave.Service, m *metrics.Metrics) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()

		runHousekeeping(ctx, tokens, waves, m)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runHousekeeping(ctx, tokens, waves, m)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func runHousekeeping(ctx context.Context, tokens *token.Store, waves *wave.Service, m *metrics.Metrics) {
	if purged, err := tokens.PurgeExpired(ctx); err != nil {
		slog.Error("token_purge_failed", "error", err)
	} else if purged > 0 {
		slog.Info("tokens_purged", "count", purged)
	}

	if active, err := tokens.Active(ctx); err == nil {
		m.SetOutstandingTokens(active)
	}

	if notified, err := waves.NotifyDue(ctx); err != nil {
		slog.Error("wave_notify_sweep_failed", "error", err)
	} else if notified > 0 {
		slog.Info("wave_notify_sweep", "notified", notified)
	}

	if reminded, err := waves.RemindDue(ctx); err != nil {
		slog.Error("wave_reminder_sweep_failed", "error", err)
	} else if reminded > 0 {
		slog.Info("wave_reminder_sweep", "reminded", reminded)
	}
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	// Setup TLS
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	// Channel for server errors
	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		// Plain HTTP on configured port
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		// HTTPS on :443
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		// HTTP redirect server on :80
		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeSelfSigned, TLSModeManual:
		// HTTPS on configured port
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown main server
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}

	// Shutdown HTTP redirect server if running
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
