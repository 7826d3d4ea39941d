package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/retriever/models"
	"github.com/ysmood/gson"
)

// fakeDriver is an in-memory Driver. Streams in onNavigate are appended to
// the recorded traffic on every Navigate.
type fakeDriver struct {
	mu sync.Mutex

	navigateErr error
	waitErr     error
	runErr      error
	walk        map[string]any
	html        string
	title       string

	streams    []models.StreamDescriptor
	onNavigate []models.StreamDescriptor

	navigations int
	actions     [][]models.Action
	current     string
}

func (d *fakeDriver) Navigate(ctx context.Context, url string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations++
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.current = url
	for _, s := range d.onNavigate {
		s.RequestID = fmt.Sprintf("%s-%d", s.RequestID, d.navigations)
		d.streams = append(d.streams, s)
	}
	return ctx.Err()
}

func (d *fakeDriver) WaitStable(ctx context.Context, _ models.WaitCondition, _ time.Duration) error {
	if d.waitErr != nil {
		return d.waitErr
	}
	return ctx.Err()
}

func (d *fakeDriver) Evaluate(_ context.Context, js string) (gson.JSON, error) {
	switch {
	case js == walkJS:
		return gson.New(d.walk), nil
	case js == outerHTMLJS:
		return gson.New(d.html), nil
	case strings.Contains(js, "document.title"):
		return gson.New(d.title), nil
	}
	return gson.New(nil), nil
}

func (d *fakeDriver) ReadNetworkStreams(filter func(models.StreamDescriptor) bool) []models.StreamDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.StreamDescriptor
	for _, s := range d.streams {
		if filter == nil || filter(s) {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDriver) RunActions(_ context.Context, actions []models.Action) error {
	d.mu.Lock()
	d.actions = append(d.actions, actions)
	d.mu.Unlock()
	return d.runErr
}

func (d *fakeDriver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// fakeFetcher serves canned bodies by exact URL.
type fakeFetcher struct {
	bodies    map[string]string
	requested []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ map[string]string) ([]byte, error) {
	f.requested = append(f.requested, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("httpfetch: HTTP 404 for %s", url)
	}
	return []byte(body), nil
}

// countingStrategy returns a fixed result and counts its calls.
type countingStrategy struct {
	name   string
	result *models.ExtractionResult
	err    error
	calls  int
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Attempt(context.Context, Driver, *models.RetrievalTask) (*models.ExtractionResult, error) {
	s.calls++
	if s.result == nil {
		return nil, s.err
	}
	cp := *s.result
	return &cp, s.err
}

type fixedPlanner struct {
	actions []models.Action
	states  []models.PageState
}

func (p *fixedPlanner) Plan(_ context.Context, state models.PageState) ([]models.Action, error) {
	p.states = append(p.states, state)
	return p.actions, nil
}

func longText(n int) string {
	return strings.Repeat("Retrieval engines serialize browser access. ", n)
}
