package engine

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/extract"
	"github.com/use-agent/retriever/media"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/store"
)

// DefaultCategory is used for articles submitted without feed metadata.
const DefaultCategory = "single_url_fetch"

// Muxer combines downloaded streams into one file. media.Muxer
// implements it.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, out string) error
}

// RunnerDeps wires a Runner.
type RunnerDeps struct {
	Gate       *Gate
	Controller *Controller
	Chains     map[models.TaskKind]*extract.Chain
	Store      *store.Store
	Downloader media.Downloader
	Muxer      Muxer
	Media      config.MediaConfig
	Observer   Observer
}

// Runner processes one RetrievalTask end to end: idempotence check,
// gated attempts, and the write-once commit.
type Runner struct {
	gate       *Gate
	controller *Controller
	chains     map[models.TaskKind]*extract.Chain
	store      *store.Store
	downloader media.Downloader
	muxer      Muxer
	media      config.MediaConfig
	observer   Observer
}

// NewRunner creates a Runner.
func NewRunner(d RunnerDeps) *Runner {
	if d.Observer == nil {
		d.Observer = NopObserver{}
	}
	return &Runner{
		gate:       d.Gate,
		controller: d.Controller,
		chains:     d.Chains,
		store:      d.Store,
		downloader: d.Downloader,
		muxer:      d.Muxer,
		media:      d.Media,
		observer:   d.Observer,
	}
}

// Run processes task and returns its terminal status. It never panics on
// task failure and never touches the browser when the output already
// exists.
func (r *Runner) Run(ctx context.Context, task *models.RetrievalTask) models.TaskStatus {
	start := time.Now()
	status := r.run(ctx, task)
	status.URL = task.URL
	status.DurationMs = time.Since(start).Milliseconds()

	if status.Status == models.StatusFailed && status.Error != nil {
		slog.Warn("retrieval failed",
			"url", task.URL, "kind", task.Kind,
			"strategy", status.Error.Strategy, "attempt", status.Error.Attempt,
			"reason", status.Error.Code, "error", status.Error.Message,
		)
	} else {
		slog.Info("retrieval finished",
			"url", task.URL, "kind", task.Kind, "status", status.Status,
			"strategy", status.Strategy, "attempts", status.Attempts, "path", status.OutputPath,
		)
	}
	r.observer.TaskFinished(task.Kind, status)
	return status
}

func (r *Runner) run(ctx context.Context, task *models.RetrievalTask) models.TaskStatus {
	if err := normalizeTask(task); err != nil {
		return failed(err)
	}

	// ── 1. Idempotence: existing output is authoritative ─────────────
	path := r.store.PathFor(task)
	task.OutputPath = path
	if store.Exists(path) {
		slog.Debug("output exists, skipping", "url", task.URL, "path", path)
		return models.TaskStatus{Status: models.StatusSkipped, OutputPath: path}
	}

	chain, ok := r.chains[task.Kind]
	if !ok {
		return failed(models.NewRetrievalError(models.ErrCodeInvalidInput, "no extractor chain for kind "+string(task.Kind), nil))
	}

	// ── 2. Gated attempts ────────────────────────────────────────────
	var staged string
	defer func() {
		if staged != "" {
			os.Remove(staged)
		}
	}()

	rep := r.controller.Run(ctx, task, func(ctx context.Context, task *models.RetrievalTask) models.Outcome {
		out := r.attempt(ctx, chain, task)
		if out.Kind != models.OutcomeSuccess || task.Kind != models.KindVideo {
			return out
		}
		file, err := r.stageVideo(ctx, task, out.Result)
		if err != nil {
			re := models.AsRetrievalError(err).At(out.Result.Strategy, task.Attempt)
			if models.IsRetryable(re.Code) {
				return models.Retryable(re, out.Tried)
			}
			return models.Fatal(re, out.Tried)
		}
		staged = file
		return out
	})

	status := models.TaskStatus{Attempts: rep.Attempts, Tried: rep.Tried}
	if rep.State != StateSucceeded {
		status.Status = models.StatusFailed
		status.Error = rep.Err.ToDetail()
		return status
	}
	status.Strategy = rep.Result.Strategy

	// ── 3. Write-once commit ─────────────────────────────────────────
	var (
		written bool
		err     error
	)
	if task.Kind == models.KindVideo {
		written, err = r.commitVideo(task, rep.Result, staged, path)
	} else {
		written, err = r.commitArticle(task, rep.Result, path)
	}
	if err != nil {
		status.Status = models.StatusFailed
		status.Error = models.AsRetrievalError(err).At(rep.Result.Strategy, rep.Attempts).ToDetail()
		return status
	}

	status.OutputPath = path
	status.Status = models.StatusSucceeded
	if !written {
		// Another task committed the same key first.
		status.Status = models.StatusSkipped
	}
	return status
}

// attempt runs the chain once while holding the Session Gate. The gate is
// released before the outcome is returned.
func (r *Runner) attempt(ctx context.Context, chain *extract.Chain, task *models.RetrievalTask) models.Outcome {
	var (
		out models.Outcome
		ran bool
	)
	err := r.gate.With(ctx, task.ID, task.Kind, func(ctx context.Context, drv extract.Driver) error {
		out = chain.Run(ctx, drv, task)
		ran = true
		if out.Reason != nil {
			return out.Reason
		}
		return nil
	})
	if ran {
		return out
	}

	// The gate failed before or while running the chain.
	re := models.AsRetrievalError(err).At("", task.Attempt)
	if models.IsRetryable(re.Code) {
		return models.Retryable(re, nil)
	}
	return models.Fatal(re, nil)
}

// stageVideo downloads the sniffed streams and muxes them into a temp
// file. Download failures are retryable; muxing failures are not.
func (r *Runner) stageVideo(ctx context.Context, task *models.RetrievalTask, res *models.ExtractionResult) (string, error) {
	tmpDir, err := r.store.TempDir()
	if err != nil {
		return "", err
	}
	base := filepath.Join(tmpDir, store.VideoID(task.URL)+"-"+task.ID+"-"+strconv.Itoa(task.Attempt))
	videoPath := base + ".video"
	audioPath := ""
	out := base + ".mp4"
	defer os.Remove(videoPath)

	dctx := ctx
	if r.media.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, r.media.DownloadTimeout)
		defer cancel()
	}

	headers := extract.PlatformFor(task.URL).DownloadHeaders()
	if _, err := media.Fetch(dctx, r.downloader, res.StreamURL, videoPath, headers); err != nil {
		return "", err
	}
	if res.AudioURL != "" {
		audioPath = base + ".audio"
		defer os.Remove(audioPath)
		if _, err := media.Fetch(dctx, r.downloader, res.AudioURL, audioPath, headers); err != nil {
			return "", err
		}
	}

	if err := r.muxer.Mux(ctx, videoPath, audioPath, out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func (r *Runner) commitArticle(task *models.RetrievalTask, res *models.ExtractionResult, path string) (bool, error) {
	header := store.Header{
		Title:     task.Title,
		SourceURL: task.URL,
		Feed:      task.Feed,
		Category:  task.Category,
		Strategy:  res.Strategy,
		Date:      task.Date,
	}
	return store.WriteOnce(path, store.ArticleDocument(header, res.Content))
}

func (r *Runner) commitVideo(task *models.RetrievalTask, res *models.ExtractionResult, staged, path string) (bool, error) {
	written, err := store.Commit(staged, path)
	if err != nil || !written {
		return written, err
	}
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = store.SanitizeVideoTitle("")
	}
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if _, err := store.WriteOnce(sidecar, []byte(title+"\n")); err != nil {
		slog.Warn("failed to write video title", "url", task.URL, "path", sidecar, "error", err)
	}
	return true, nil
}

// normalizeTask validates the URL and fills the fields the idempotence
// key depends on.
func normalizeTask(task *models.RetrievalTask) error {
	u, err := url.Parse(strings.TrimSpace(task.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewRetrievalError(models.ErrCodeInvalidInput, "not an absolute http(s) URL: "+task.URL, err)
	}
	task.URL = u.String()
	if task.Kind == "" {
		task.Kind = models.KindArticle
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Date.IsZero() {
		task.Date = time.Now()
	}
	if task.Kind == models.KindArticle {
		if task.Title == "" {
			task.Title = store.TitleFromURL(task.URL)
		}
		if task.Category == "" {
			task.Category = DefaultCategory
		}
	}
	return nil
}

func failed(err error) models.TaskStatus {
	return models.TaskStatus{Status: models.StatusFailed, Error: models.AsRetrievalError(err).ToDetail()}
}
