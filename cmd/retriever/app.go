package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/retriever/cleaner"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/engine"
	"github.com/use-agent/retriever/extract"
	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/media"
	"github.com/use-agent/retriever/metrics"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/planner"
	"github.com/use-agent/retriever/scraper"
	"github.com/use-agent/retriever/simhash"
	"github.com/use-agent/retriever/store"
)

// readerInterval paces requests to the reader proxy, which throttles
// anonymous clients.
const readerInterval = 3 * time.Second

// app is the assembled retrieval engine shared by every command.
type app struct {
	browser   *scraper.Browser
	gate      *engine.Gate
	metrics   *metrics.Collector
	scheduler *engine.Scheduler
}

// newApp connects to the browser and wires gate, chains, runner and
// scheduler.
func newApp(cfg *config.Config) (*app, error) {
	clean, err := cleaner.NewCleanerWithMode(cfg.Cleaner.Mode)
	if err != nil {
		return nil, err
	}

	// ── 1. Browser ──────────────────────────────────────────────────
	browser, err := scraper.Connect(cfg.Browser)
	if err != nil {
		return nil, err
	}

	// ── 2. Session Gate ─────────────────────────────────────────────
	mc := metrics.NewCollector("retriever")
	gate := engine.NewGate(cfg.Gate, func(ctx context.Context) (engine.Handle, error) {
		s, err := browser.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, mc)
	mc.WatchGate("retriever", gate)

	// ── 3. Extractor chains ─────────────────────────────────────────
	fetcher := scraper.NewFetcher(cfg.Browser.Proxy)
	validator := extract.NewValidator(cfg.Validator, simhash.NewBlockPageIndex(cfg.Validator.BlockPageDistance))

	var plan extract.Planner = planner.NewStatic()
	if cfg.LLM.Planner && cfg.LLM.APIKey != "" {
		plan = planner.NewLLM(llm.NewClient(cfg.LLM, nil), planner.NewStatic())
		slog.Info("llm planner enabled", "model", cfg.LLM.Model)
	}

	chains := map[models.TaskKind]*extract.Chain{
		models.KindArticle: extract.NewChain(validator, extract.ArticleStrategies(
			clean, fetcher, cfg.Retry.SettleBase,
			rate.NewLimiter(rate.Every(readerInterval), 1),
		)...),
		models.KindVideo: extract.NewChain(validator, extract.VideoStrategies(plan, cfg.Retry.SettleBase)...),
	}

	// ── 4. Runner and scheduler ─────────────────────────────────────
	st := store.New(cfg.Output)
	runner := engine.NewRunner(engine.RunnerDeps{
		Gate:       gate,
		Controller: engine.NewController(cfg.Retry, mc),
		Chains:     chains,
		Store:      st,
		Downloader: fetcher,
		Muxer:      media.NewMuxer(cfg.Media.FFmpegBin),
		Media:      cfg.Media,
		Observer:   mc,
	})

	slog.Info("retrieval engine ready",
		"debugURL", cfg.Browser.DebugURL,
		"gateCapacity", cfg.Gate.Capacity,
		"concurrency", cfg.Scheduler.Concurrency,
		"articleChain", chains[models.KindArticle].Names(),
		"videoChain", chains[models.KindVideo].Names(),
	)

	return &app{
		browser:   browser,
		gate:      gate,
		metrics:   mc,
		scheduler: engine.NewScheduler(runner, cfg.Scheduler),
	}, nil
}

// Close retires every idle session, then disconnects from the browser.
func (a *app) Close() {
	a.gate.Close()
	a.browser.Close()
}

// runBatch runs items as one batch, prints the report and maps the
// summary to an exit code.
func (a *app) runBatch(ctx context.Context, kind models.TaskKind, items []models.BatchItem) error {
	tasks := engine.NewTasks(kind, items, time.Now())
	statuses, summary := a.scheduler.Run(ctx, tasks, func(_ int, st models.TaskStatus) {
		if st.Status == models.StatusFailed {
			slog.Warn("item failed", "url", st.URL, "error", st.Error)
		}
	})
	printReport(struct {
		Summary models.BatchSummary `json:"summary"`
		Results []models.TaskStatus `json:"results"`
	}{summary, statuses})
	return exitFor(summary)
}

func printReport(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
