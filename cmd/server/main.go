// main is the entry point for the Checkpoint API server.
//
// It reads configuration from the environment, opens the SQLite database,
// starts the live feed and the auto-close sweep, registers all HTTP routes
// and serves until interrupted.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root": the single place where all the
// independent packages (config, db, handlers, live, sweep, middleware)
// are wired together. Keeping this wiring in main.go means every other
// package stays easy to test in isolation (they never import each other
// in a circle).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventdesk/checkpoint/internal/auth"
	"github.com/eventdesk/checkpoint/internal/config"
	"github.com/eventdesk/checkpoint/internal/db"
	"github.com/eventdesk/checkpoint/internal/handlers"
	"github.com/eventdesk/checkpoint/internal/live"
	"github.com/eventdesk/checkpoint/internal/logging"
	"github.com/eventdesk/checkpoint/internal/middleware"
	"github.com/eventdesk/checkpoint/internal/sweep"
	"github.com/mattn/go-isatty"
)

func main() {
	// ── Configuration ────────────────────────────────────────────────
	cfg, err := config.LoadServer()
	if err != nil {
		logging.New(os.Stderr, "error", false).Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, !isatty.IsTerminal(os.Stderr.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// ── Live feed ────────────────────────────────────────────────────
	hub := live.NewHub(logger)
	go hub.Run(ctx)

	// ── Handlers ─────────────────────────────────────────────────────
	// Server is a plain struct that holds the shared dependencies. All
	// handler methods live on it.
	srv := &handlers.Server{
		DB:     database,
		Secret: cfg.JWTSecret,
		Logger: logger,
		Live:   hub,
	}

	// ── Auto-close sweep ─────────────────────────────────────────────
	sweeper := sweep.New(database, srv, logger)
	if n, err := sweeper.CloseFinished(ctx); err != nil {
		logger.Warn("initial sweep", "error", err)
	} else if n > 0 {
		logger.Info("closed finished events", "count", n)
	}
	if err := sweeper.Start(cfg.CloseSweepSchedule); err != nil {
		logger.Error("start sweep", "schedule", cfg.CloseSweepSchedule, "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	// ── Router ───────────────────────────────────────────────────────
	// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
	// wildcards ("{id}") natively; no third-party router needed.
	mux := http.NewServeMux()

	// Public routes: no token required.
	mux.HandleFunc("POST /api/auth/register", srv.Register)
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	if cfg.EnableSeed {
		// Demo seed: idempotent. Disable with ENABLE_SEED=false outside demos.
		mux.HandleFunc("POST /api/admin/seed", srv.SeedDemo)
	}

	// ── Middleware helpers ────────────────────────────────────────────
	// Chaining them: authed(onlyAdmin(handler)) means:
	//   1. Authenticate runs first  → sets user_id/role in context
	//   2. RequireRole runs second  → allows or rejects based on role
	//   3. handler runs last        → does the actual work
	authed := middleware.Authenticate(cfg.JWTSecret)
	onlyAdmin := middleware.RequireRole(auth.RoleAdmin)
	read := func(h http.HandlerFunc) http.Handler { return authed(h) }
	write := func(h http.HandlerFunc) http.Handler { return authed(onlyAdmin(h)) }

	// Any logged-in user.
	mux.Handle("GET /api/auth/me", read(srv.Me))
	mux.Handle("GET /api/dashboard", read(srv.Dashboard))
	mux.Handle("GET /api/events", read(srv.ListEvents))
	mux.Handle("GET /api/events/{id}", read(srv.GetEvent))
	mux.Handle("GET /api/events/{id}/checkin-rules", read(srv.GetRules))
	mux.Handle("POST /api/checkin-rules/validate", read(srv.ValidateRules))
	mux.Handle("GET /api/participants", read(srv.ListParticipants))
	mux.Handle("GET /api/participants/{id}", read(srv.GetParticipant))
	mux.Handle("GET /api/live", read(live.Handler(hub, logger, cfg.CORSOrigins...)))
	// ↓ Door devices sync their scans; see handlers/sync.go
	mux.Handle("POST /api/sync/checkins", read(srv.SyncCheckIns))

	// Admin-only routes.
	mux.Handle("POST /api/events", write(srv.CreateEvent))
	mux.Handle("PUT /api/events/{id}", write(srv.UpdateEvent))
	mux.Handle("DELETE /api/events/{id}", write(srv.DeleteEvent))
	mux.Handle("GET /api/events/{id}/checkin-code", write(srv.GetEventCheckInCode))
	mux.Handle("PUT /api/events/{id}/checkin-rules", write(srv.PutRules))
	mux.Handle("POST /api/participants", write(srv.CreateParticipant))
	mux.Handle("PUT /api/participants/{id}", write(srv.UpdateParticipant))
	mux.Handle("DELETE /api/participants/{id}", write(srv.DeleteParticipant))
	mux.Handle("POST /api/participants/{id}/transfer", write(srv.TransferParticipant))
	mux.Handle("POST /api/participants/{id}/checkin", write(srv.CheckInParticipant))

	handler := middleware.Recover(logger)(
		middleware.Logging(logger)(
			middleware.CORS(cfg.CORSOrigins)(mux)))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	logger.Info("Checkpoint API listening", "addr", cfg.Addr, "seed", cfg.EnableSeed)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
