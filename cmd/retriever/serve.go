package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/retriever/api"
	"github.com/use-agent/retriever/cache"
	"github.com/use-agent/retriever/webhook"
)

const (
	jobCacheSize = 1000
	jobCacheTTL  = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		slog.Info("retriever starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
		)

		// ── 1. Retrieval engine (connects to the browser) ───────────
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// ── 2. Job cache and webhook ────────────────────────────────
		jobs := cache.New(jobCacheSize, jobCacheTTL)
		defer jobs.Stop()

		// ── 3. Setup router ─────────────────────────────────────────
		router := api.NewRouter(cfg, api.Deps{
			Ctx:      ctx,
			Runner:   a.scheduler,
			Gate:     a.gate,
			Jobs:     jobs,
			Notifier: webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret),
			Metrics:  a.metrics,
		}, time.Now())

		// ── 4. Start HTTP server ────────────────────────────────────
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// ── 5. Graceful shutdown ────────────────────────────────────
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}

		// Background batches were canceled with ctx; a.Close runs via
		// defer and releases the browser sessions.
		slog.Info("retriever stopped")
		return nil
	},
}
