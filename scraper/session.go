package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
	"github.com/use-agent/retriever/models"
	"github.com/ysmood/gson"
)

// resetTimeout bounds the about:blank navigation that parks a session.
const resetTimeout = 10 * time.Second

// Session is one browser tab. It is mutated only by the task currently
// holding it through the Session Gate.
//
// Lifecycle per hold:
//
//  1. Prepare    – mount hijack (articles) or network capture (videos)
//  2. Navigate / WaitStable / Evaluate / RunActions / ReadNetworkStreams
//  3. Reset      – stop capture, unmount hijack, park on about:blank
//
// Step 3 runs on the session's own background context so it succeeds even
// when the task context has already expired.
type Session struct {
	owner *Browser
	page  *rod.Page

	streams     *streamRecorder
	stopCapture context.CancelFunc
	router      *rod.HijackRouter

	mu         sync.Mutex
	currentURL string
}

func newSession(owner *Browser, page *rod.Page) *Session {
	s := &Session{
		owner:      owner,
		page:       page,
		streams:    newStreamRecorder(),
		currentURL: "about:blank",
	}
	if owner.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	return s
}

// Prepare mounts the per-kind page plumbing. It must be called before the
// first Navigate of a hold.
func (s *Session) Prepare(ctx context.Context, kind models.TaskKind) error {
	if err := ctx.Err(); err != nil {
		return classify(err, "prepare canceled")
	}
	if kind == models.KindVideo {
		// Network capture and request hijacking both use interception on
		// recent Chromium builds, so video pages only capture.
		captureCtx, cancel := context.WithCancel(context.Background())
		s.stopCapture = cancel
		wait := s.page.Context(captureCtx).EachEvent(
			s.streams.onRequest,
			s.streams.onResponse,
		)
		go wait()
		return nil
	}

	s.router = setupHijack(s.page, s.owner.cfg.BlockedResourceTypes, s.owner.cfg.BlockAds)
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.owner.cfg.NavigationTimeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return classify(err, "navigation to target URL failed")
	}
	s.setURL(url)
	if err := p.WaitLoad(); err != nil {
		return classify(err, "page did not finish loading")
	}
	return nil
}

// WaitStable blocks until cond holds or timeout elapses.
func (s *Session) WaitStable(ctx context.Context, cond models.WaitCondition, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	p := s.page.Context(ctx)

	var err error
	switch cond.Kind {
	case models.WaitLoad:
		err = p.WaitLoad()
	case models.WaitDOMStable, "":
		settle := cond.Settle
		if settle <= 0 {
			settle = 300 * time.Millisecond
		}
		err = p.WaitDOMStable(settle, 0.1)
	case models.WaitRequestIdle:
		settle := cond.Settle
		if settle <= 0 {
			settle = 500 * time.Millisecond
		}
		p.WaitRequestIdle(settle, nil, nil, nil)()
		err = ctx.Err()
	case models.WaitSelector:
		if cond.Selector == "" {
			return models.NewRetrievalError(models.ErrCodeInvalidInput, "selector wait requires a selector", nil)
		}
		err = p.WaitElementsMoreThan(cond.Selector, 0)
	case models.WaitSleep:
		err = sleepCtx(ctx, cond.Settle)
	default:
		return models.NewRetrievalError(models.ErrCodeInvalidInput, "unknown wait condition "+cond.Kind, nil)
	}
	return classify(err, fmt.Sprintf("wait for %s failed", cond.Kind))
}

// Evaluate runs js (a function expression) in the page and returns its
// JSON value. Promises are awaited.
func (s *Session) Evaluate(ctx context.Context, js string) (gson.JSON, error) {
	ctx, cancel := withTimeout(ctx, s.owner.cfg.ActionTimeout)
	defer cancel()

	res, err := s.page.Context(ctx).Evaluate(rod.Eval(js).ByPromise())
	if err != nil {
		return gson.New(nil), classify(err, "script evaluation failed")
	}
	return res.Value, nil
}

// ReadNetworkStreams returns the requests captured since Prepare that
// satisfy filter.
func (s *Session) ReadNetworkStreams(filter func(models.StreamDescriptor) bool) []models.StreamDescriptor {
	return s.streams.snapshot(filter)
}

// RunActions executes planner actions in order.
func (s *Session) RunActions(ctx context.Context, actions []models.Action) error {
	return executeActions(ctx, s.page, actions, s.owner.cfg.ActionTimeout)
}

// CurrentURL returns the last URL navigated to.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

func (s *Session) setURL(u string) {
	s.mu.Lock()
	s.currentURL = u
	s.mu.Unlock()
}

// Reset returns the session to a stable point: capture and hijack are torn
// down and the tab is parked on about:blank.
func (s *Session) Reset() error {
	if s.stopCapture != nil {
		s.stopCapture()
		s.stopCapture = nil
	}
	if s.router != nil {
		_ = s.router.Stop()
		s.router = nil
	}
	s.streams.reset()

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := s.page.Context(ctx).Navigate("about:blank"); err != nil {
		return classify(err, "failed to park session on about:blank")
	}
	s.setURL("about:blank")
	return nil
}

// Close resets and closes the tab.
func (s *Session) Close() error {
	_ = s.Reset()
	s.owner.forget(s)
	if err := s.page.Close(); err != nil {
		return classify(err, "failed to close tab")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
