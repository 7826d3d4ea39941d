package scraper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
)

// Browser owns the single remote-control connection to the shared browser.
// Callers never touch it directly: sessions are handed out through the
// Session Gate.
type Browser struct {
	browser  *rod.Browser
	cfg      config.BrowserConfig
	launched *launcher.Launcher

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// Connect attaches to the browser listening on cfg.DebugURL. When nothing
// answers there and LaunchFallback is set, a private browser is launched
// with the stealth flag set instead.
func Connect(cfg config.BrowserConfig) (*Browser, error) {
	b := &Browser{cfg: cfg, sessions: make(map[*Session]struct{})}

	controlURL, err := launcher.ResolveURL(cfg.DebugURL)
	if err != nil {
		if !cfg.LaunchFallback {
			return nil, models.NewRetrievalError(
				models.ErrCodeDriverProtocol,
				"no browser on debug endpoint "+cfg.DebugURL,
				err,
			)
		}
		slog.Warn("debug endpoint unreachable, launching private browser",
			"debugURL", cfg.DebugURL, "error", err)
		controlURL, err = b.launch()
		if err != nil {
			return nil, err
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewRetrievalError(
			models.ErrCodeDriverProtocol,
			"failed to connect to browser",
			err,
		)
	}
	slog.Info("browser connected", "controlURL", controlURL, "launched", b.launched != nil)

	b.browser = browser
	return b, nil
}

func (b *Browser) launch() (string, error) {
	l := launcher.New().
		Headless(b.cfg.Headless).
		NoSandbox(b.cfg.NoSandbox)

	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}
	if b.cfg.Proxy != "" {
		l = l.Proxy(b.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return "", models.NewRetrievalError(
			models.ErrCodeDriverProtocol,
			"failed to launch browser",
			err,
		)
	}
	b.launched = l
	slog.Info("browser launched", "controlURL", controlURL)
	return controlURL, nil
}

// NewSession opens a fresh tab. The returned Session is parked on
// about:blank and is not yet prepared for any task kind.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, classify(err, "failed to open browser tab")
	}
	// Detach the page from the creation context; each operation binds its own.
	page = page.Context(context.Background())

	s := newSession(b, page)
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (b *Browser) forget(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}

// Close closes every tab opened through this Browser. A launched browser is
// killed; an attached browser is only disconnected.
func (b *Browser) Close() {
	b.mu.Lock()
	open := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		open = append(open, s)
	}
	b.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}

	if b.launched != nil {
		slog.Info("browser shutting down: closing launched browser")
		_ = b.browser.Close()
		b.launched.Cleanup()
		return
	}
	// Closing the rod client of an attached browser would close the
	// user's browser too; the websocket goes away with the process.
	slog.Info("browser detached")
}
