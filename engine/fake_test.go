package engine

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/extract"
	"github.com/use-agent/retriever/models"
	"github.com/ysmood/gson"
)

// overlapDetector records the highest number of concurrent holders seen.
type overlapDetector struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (o *overlapDetector) enter() {
	n := o.active.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (o *overlapDetector) exit() { o.active.Add(-1) }

// fakeHandle is a browser session without a browser. A hold spans
// Prepare to Reset.
type fakeHandle struct {
	detector *overlapDetector

	navDelay time.Duration
	navErr   error
	resetErr error

	prepares    atomic.Int32
	navigations atomic.Int32
	resets      atomic.Int32
	closed      atomic.Bool
}

func (h *fakeHandle) Prepare(ctx context.Context, _ models.TaskKind) error {
	h.prepares.Add(1)
	if h.detector != nil {
		h.detector.enter()
	}
	return ctx.Err()
}

func (h *fakeHandle) Navigate(ctx context.Context, _ string, _ time.Duration) error {
	h.navigations.Add(1)
	if h.navDelay > 0 {
		select {
		case <-time.After(h.navDelay):
		case <-ctx.Done():
			return models.NewRetrievalError(models.ErrCodeDriverTimeout, "navigation timed out", ctx.Err())
		}
	}
	return h.navErr
}

func (h *fakeHandle) WaitStable(ctx context.Context, _ models.WaitCondition, _ time.Duration) error {
	return ctx.Err()
}

func (h *fakeHandle) Evaluate(context.Context, string) (gson.JSON, error) {
	return gson.New(nil), nil
}

func (h *fakeHandle) ReadNetworkStreams(func(models.StreamDescriptor) bool) []models.StreamDescriptor {
	return nil
}

func (h *fakeHandle) RunActions(context.Context, []models.Action) error { return nil }

func (h *fakeHandle) CurrentURL() string { return "about:blank" }

func (h *fakeHandle) Reset() error {
	h.resets.Add(1)
	if h.detector != nil {
		h.detector.exit()
	}
	return h.resetErr
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// handleFactory hands out fakeHandles built by mk and remembers them.
type handleFactory struct {
	mu      sync.Mutex
	mk      func() *fakeHandle
	handles []*fakeHandle
}

func (f *handleFactory) open(context.Context) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.mk()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *handleFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *handleFactory) prepares() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.handles {
		n += int(h.prepares.Load())
	}
	return n
}

type interval struct {
	holder     string
	start, end time.Time
}

// recordingObserver keeps session hold intervals and per-task statuses.
type recordingObserver struct {
	NopObserver

	mu       sync.Mutex
	open     map[string]time.Time
	closed   []interval
	attempts int
	statuses []models.TaskStatus
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{open: make(map[string]time.Time)}
}

func (o *recordingObserver) SessionAcquired(holder string, at time.Time, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open[holder] = at
}

func (o *recordingObserver) SessionReleased(holder string, at time.Time, _ time.Duration, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, interval{holder: holder, start: o.open[holder], end: at})
	delete(o.open, holder)
}

func (o *recordingObserver) AttemptFinished(models.TaskKind, int, models.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *recordingObserver) TaskFinished(_ models.TaskKind, st models.TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, st)
}

// requireDisjoint fails when two recorded hold intervals overlap.
func (o *recordingObserver) requireDisjoint(t *testing.T) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.Empty(t, o.open, "every acquired session must be released")

	iv := append([]interval(nil), o.closed...)
	sort.Slice(iv, func(i, j int) bool { return iv[i].start.Before(iv[j].start) })
	for i := 1; i < len(iv); i++ {
		require.False(t, iv[i].start.Before(iv[i-1].end),
			"%s acquired at %s before %s released at %s",
			iv[i].holder, iv[i].start, iv[i-1].holder, iv[i-1].end)
	}
}

// strategy returns a named strategy producing content and counting calls.
func strategy(name, content string, calls *atomic.Int32) extract.Strategy {
	return extract.StrategyFunc{
		Label: name,
		Fn: func(ctx context.Context, drv extract.Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
			calls.Add(1)
			if err := drv.Navigate(ctx, task.URL, 0); err != nil {
				return nil, err
			}
			return &models.ExtractionResult{Content: content, Title: "t"}, nil
		},
	}
}

var goodArticle = strings.Repeat("Body text for a retrieved article. ", 10)

func testValidator() *extract.Validator {
	return extract.NewValidator(config.ValidatorConfig{
		MinLength:    100,
		ErrorMarkers: config.DefaultErrorMarkers,
		MarkerWindow: 2000,
	}, nil)
}

func testRetry() config.RetryConfig {
	return config.RetryConfig{
		ArticleMaxAttempts: 2,
		VideoMaxAttempts:   3,
		Backoff:            []time.Duration{time.Millisecond},
	}
}

// downloaderFunc adapts a function to media.Downloader.
type downloaderFunc func(ctx context.Context, url string, headers map[string]string, w io.Writer) (int64, error)

func (f downloaderFunc) Download(ctx context.Context, url string, headers map[string]string, w io.Writer) (int64, error) {
	return f(ctx, url, headers, w)
}

// muxerFunc adapts a function to Muxer.
type muxerFunc func(ctx context.Context, videoPath, audioPath, out string) error

func (f muxerFunc) Mux(ctx context.Context, videoPath, audioPath, out string) error {
	return f(ctx, videoPath, audioPath, out)
}
