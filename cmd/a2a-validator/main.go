// Command a2a-validator serves the A2A protocol validator: a web tool that
// resolves and lints agent cards, bridges live message exchanges over
// WebSocket, and mirrors raw wire traffic to a debug console.
package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	avhttp "github.com/agent-matrix/a2a-validator/internal/adapter/http"
	avotel "github.com/agent-matrix/a2a-validator/internal/adapter/otel"
	"github.com/agent-matrix/a2a-validator/internal/adapter/ristretto"
	"github.com/agent-matrix/a2a-validator/internal/adapter/ws"
	"github.com/agent-matrix/a2a-validator/internal/config"
	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/logger"
	"github.com/agent-matrix/a2a-validator/internal/resolver"
	"github.com/agent-matrix/a2a-validator/internal/session"
)

//go:embed web
var webFS embed.FS

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"resolver_mode", cfg.Resolver.Mode,
		"log_level", cfg.Logging.Level,
	)

	// --- Telemetry ---
	providers, err := avotel.Init(cfg.Telemetry, cfg.Logging.Service, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Infrastructure ---
	cache, err := ristretto.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("card cache: %w", err)
	}
	defer cache.Close()

	cards := resolver.New(resolver.ForMode(cfg.Resolver), cache, cfg.Resolver.CacheTTL)
	relay := debuglog.NewRelay(cfg.DebugLog.MaxLogs)

	// --- Sessions ---
	var opts []session.Option
	if cfg.Telemetry.Enabled {
		metrics, err := avotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		opts = append(opts, session.WithStats(metrics))
	}
	sessions := session.NewManager(cfg.Session, cfg.Breaker, cards, relay, log, opts...)
	defer sessions.Shutdown()

	// --- HTTP ---
	wsHandler := ws.NewHandler(sessions, log)
	handlers := avhttp.NewHandlers(cards, relay, nil, log)

	r := chi.NewRouter()
	r.Use(avhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(avhttp.RequestID)
	r.Use(avhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(avotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(avhttp.SecurityHeaders)

	avhttp.MountRoutes(r, handlers, wsHandler.ServeWS)

	ui, err := fs.Sub(webFS, "web")
	if err != nil {
		return fmt.Errorf("web assets: %w", err)
	}
	r.Handle("/*", http.FileServerFS(ui))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
