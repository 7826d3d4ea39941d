package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
)

// Exit codes: every item succeeded or was skipped, some failed, all failed.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var (
	cfg *config.Config

	concurrency int
	maxAttempts int
	debugURL    string
	category    string
	itemsPath   string
)

var rootCmd = &cobra.Command{
	Use:           "retriever",
	Short:         "Fetch articles and videos through a shared browser",
	Long:          `Retrieves web articles and platform videos through one shared, gated browser session, with fallback strategies and write-once output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// ── 1. Load configuration ───────────────────────────────────
		cfg = config.Load()

		flags := cmd.Flags()
		if flags.Changed("concurrency") {
			cfg.Scheduler.Concurrency = concurrency
		}
		if flags.Changed("max-attempts") {
			cfg.Retry.ArticleMaxAttempts = maxAttempts
			cfg.Retry.VideoMaxAttempts = maxAttempts
		}
		if flags.Changed("debug-url") {
			cfg.Browser.DebugURL = debugURL
		}

		// ── 2. Initialise structured logging ────────────────────────
		initLogger(cfg.Log)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&concurrency, "concurrency", 3, "Maximum tasks in flight (browser access is still gated)")
	pf.IntVar(&maxAttempts, "max-attempts", 0, "Attempts per task for every kind (overrides RETRIEVER_*_ATTEMPTS)")
	pf.StringVar(&debugURL, "debug-url", "", "Remote debugging endpoint of the shared browser (port, host:port or ws:// URL)")

	rootCmd.AddCommand(articleCmd, articlesCmd, videoCmd, serveCmd, translateCmd, evalCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		os.Exit(exitOK)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(os.Stderr, ee.msg)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitFailed)
}

// exitFor maps a batch summary to the process exit code.
func exitFor(s models.BatchSummary) error {
	switch s.Status {
	case models.BatchFailed:
		return &exitError{code: exitFailed, msg: fmt.Sprintf("all %d items failed", s.Total)}
	case models.BatchPartial:
		return &exitError{code: exitPartial, msg: fmt.Sprintf("%d of %d items failed", s.Failed, s.Total)}
	}
	return nil
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// stdout carries only the result report.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
