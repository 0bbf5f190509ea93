// Chat relay server: bridges browser chat polling to asynchronous webhook replies.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/chat-relay/internal/api"
	"github.com/ashureev/chat-relay/internal/config"
	"github.com/ashureev/chat-relay/internal/relay"
	"github.com/ashureev/chat-relay/internal/store"
	"github.com/ashureev/chat-relay/web"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port)

	// Initialize the relay.
	timing := relay.Timing{
		Retention:       cfg.Relay.Retention,
		Inactivity:      cfg.Relay.Inactivity,
		MaxWait:         cfg.Relay.MaxWait,
		PollInterval:    cfg.Relay.PollInterval,
		CloseGrace:      cfg.Relay.CloseGrace,
		PollStreakReset: cfg.Relay.PollStreakReset,
	}
	opts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithSentinel(cfg.Relay.CloseSentinel),
	}
	if cfg.Webhook.URL != "" {
		notifier := relay.NewWebhookNotifier(cfg.Webhook.URL, cfg.Relay.CloseSentinel, nil, cfg.Webhook.Timeout)
		opts = append(opts, relay.WithNotifier(notifier, cfg.Webhook.Timeout))
		slog.Info("Close notifications enabled")
	}
	svc := relay.NewService(store.NewMemoryMailbox(cfg.Relay.Retention), timing, opts...)
	slog.Info("Relay initialized",
		"retention", timing.Retention,
		"inactivity", timing.Inactivity,
		"max_wait", timing.MaxWait,
		"poll_interval", timing.PollInterval)

	var site http.Handler
	if cfg.StaticDir != "" {
		site, err = web.SiteHandler(cfg.StaticDir)
		if err != nil {
			slog.Error("Failed to serve static site", "error", err, "dir", cfg.StaticDir)
			os.Exit(1)
		}
		slog.Info("Serving static site", "dir", cfg.StaticDir)
	}

	r := api.NewRouter(cfg, svc, api.NewDebugTrace(cfg.Relay.DebugTraceSize), site)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay.StartJanitor(ctx, svc, cfg.Relay.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	svc.Wait()

	slog.Info("Server stopped successfully")
}
