package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/retriever/cleaner"
	"github.com/use-agent/retriever/models"
	"golang.org/x/time/rate"
)

// Article strategy names, in chain order.
const (
	StrategyDOM     = "dom"
	StrategyReader  = "reader"
	StrategyCache   = "cache"
	StrategyWayback = "wayback"
)

const (
	defaultReaderBase  = "https://r.jina.ai/"
	defaultCacheBase   = "http://webcache.googleusercontent.com/search?q=cache:"
	defaultWaybackAPI  = "https://archive.org/wayback/available?url="
	defaultSettleBase  = 500 * time.Millisecond
	stableWaitCeiling  = 15 * time.Second
	readerMarkdownMark = "Markdown Content:"
)

// walkJS reads the rendered article: it picks <article>, <main> or <body>,
// drops chrome elements on a detached clone, and renders headings,
// paragraphs, list items and code blocks as markdown.
const walkJS = `() => {
	const root = document.querySelector('article') || document.querySelector('main') || document.body;
	if (!root) return { title: document.title || '', markdown: '' };
	const skip = ['script', 'style', 'iframe', 'noscript', 'header', 'footer', 'nav', '.ad', '.advertisement', '[role="complementary"]'];
	const clone = root.cloneNode(true);
	skip.forEach(sel => clone.querySelectorAll(sel).forEach(el => el.remove()));
	let text = '';
	const walk = (node) => {
		if (node.nodeType === 3) { text += node.textContent; return; }
		if (node.nodeType !== 1) return;
		const tag = node.tagName.toLowerCase();
		const inner = (node.textContent || '').trim();
		if (tag === 'h1') text += '\n# ' + inner + '\n\n';
		else if (tag === 'h2') text += '\n## ' + inner + '\n\n';
		else if (tag === 'h3') text += '\n### ' + inner + '\n\n';
		else if (tag === 'p') text += '\n' + inner + '\n\n';
		else if (tag === 'li') text += '- ' + inner + '\n';
		else if (tag === 'pre' || tag === 'code') text += '\n` + "```" + `\n' + (node.textContent || '') + '\n` + "```" + `\n\n';
		else Array.from(node.childNodes).forEach(walk);
	};
	walk(clone);
	return { title: document.title || '', markdown: text };
}`

const outerHTMLJS = `() => document.documentElement ? document.documentElement.outerHTML : ''`

// DOMStrategy reads the rendered page through script injection. When the
// walk yields nothing it converts the full page HTML instead.
type DOMStrategy struct {
	Cleaner *cleaner.Cleaner

	// SettleBase is the DOM quiet period of attempt 1; attempt n waits
	// n times as long.
	SettleBase time.Duration
}

func (s *DOMStrategy) Name() string { return StrategyDOM }

func (s *DOMStrategy) Attempt(ctx context.Context, drv Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	if err := drv.Navigate(ctx, task.URL, 0); err != nil {
		return nil, err
	}

	settle := settleFor(s.SettleBase, task.Attempt)
	if err := drv.WaitStable(ctx, models.WaitCondition{Kind: models.WaitDOMStable, Settle: settle}, settle+stableWaitCeiling); err != nil {
		// Pages that never go quiet are still worth reading.
		if models.CodeOf(err) != models.ErrCodeDriverTimeout {
			return nil, err
		}
		slog.Debug("dom never settled, reading anyway", "url", task.URL, "settle", settle)
	}

	res, err := drv.Evaluate(ctx, walkJS)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(str(res.Get("title")))
	md := s.Cleaner.Clean(str(res.Get("markdown")))

	if md == "" {
		html, err := drv.Evaluate(ctx, outerHTMLJS)
		if err != nil {
			return nil, err
		}
		page := str(html)
		doc, err := s.Cleaner.Markdown(narrowToRoot(page, task.URL), task.URL, "")
		if err != nil {
			return nil, err
		}
		md = doc.Markdown
		if title == "" {
			title = doc.Title
		}
		if title == "" {
			title = cleaner.ExtractTitle(page)
		}
	}
	if md == "" {
		return nil, nil
	}

	return &models.ExtractionResult{
		Content:  md,
		Title:    title,
		FinalURL: drv.CurrentURL(),
	}, nil
}

// ReaderStrategy asks a reader proxy to render the URL as markdown.
type ReaderStrategy struct {
	Fetcher Fetcher
	Cleaner *cleaner.Cleaner

	// BaseURL is prepended to the target URL. Default: https://r.jina.ai/
	BaseURL string

	// Limiter paces requests to the proxy; nil disables pacing.
	Limiter *rate.Limiter
}

func (s *ReaderStrategy) Name() string { return StrategyReader }

func (s *ReaderStrategy) Attempt(ctx context.Context, _ Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, canceled(err)
		}
	}

	base := s.BaseURL
	if base == "" {
		base = defaultReaderBase
	}
	body, err := s.Fetcher.Fetch(ctx, base+task.URL, map[string]string{"Accept": "text/plain"})
	if err != nil {
		return nil, fetchFailed(StrategyReader, err)
	}

	title, md := splitReaderOutput(string(body))
	md = s.Cleaner.Clean(md)
	if md == "" {
		return nil, nil
	}
	return &models.ExtractionResult{Content: md, Title: title, FinalURL: task.URL}, nil
}

// splitReaderOutput separates the reader preamble ("Title: ...",
// "URL Source: ...") from the markdown body.
func splitReaderOutput(body string) (title, markdown string) {
	idx := strings.Index(body, readerMarkdownMark)
	if idx < 0 {
		return "", body
	}
	for _, line := range strings.Split(body[:idx], "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "Title:"); ok {
			title = strings.TrimSpace(t)
		}
	}
	return title, body[idx+len(readerMarkdownMark):]
}

// CacheStrategy reads a search-engine cache snapshot of the URL.
type CacheStrategy struct {
	Fetcher Fetcher
	Cleaner *cleaner.Cleaner

	// BaseURL is prepended to the escaped target URL.
	BaseURL string
}

func (s *CacheStrategy) Name() string { return StrategyCache }

func (s *CacheStrategy) Attempt(ctx context.Context, _ Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	base := s.BaseURL
	if base == "" {
		base = defaultCacheBase
	}
	body, err := s.Fetcher.Fetch(ctx, base+url.QueryEscape(task.URL), nil)
	if err != nil {
		return nil, fetchFailed(StrategyCache, err)
	}
	return snapshotResult(s.Cleaner, string(body), task.URL)
}

// WaybackStrategy reads the closest archived copy of the URL.
type WaybackStrategy struct {
	Fetcher Fetcher
	Cleaner *cleaner.Cleaner

	// APIURL is the availability endpoint, prepended to the escaped URL.
	APIURL string
}

func (s *WaybackStrategy) Name() string { return StrategyWayback }

type waybackAvailability struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

func (s *WaybackStrategy) Attempt(ctx context.Context, _ Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	api := s.APIURL
	if api == "" {
		api = defaultWaybackAPI
	}
	body, err := s.Fetcher.Fetch(ctx, api+url.QueryEscape(task.URL), nil)
	if err != nil {
		return nil, fetchFailed(StrategyWayback, err)
	}

	var avail waybackAvailability
	if err := json.Unmarshal(body, &avail); err != nil {
		return nil, fetchFailed(StrategyWayback, fmt.Errorf("decode availability: %w", err))
	}
	closest := avail.ArchivedSnapshots.Closest
	if closest == nil || closest.URL == "" {
		return nil, nil
	}

	snapshot, err := s.Fetcher.Fetch(ctx, closest.URL, nil)
	if err != nil {
		return nil, fetchFailed(StrategyWayback, err)
	}
	res, err := snapshotResult(s.Cleaner, string(snapshot), task.URL)
	if res != nil {
		res.FinalURL = closest.URL
	}
	return res, err
}

// snapshotResult converts a cache or archive copy. The content root is
// looked up by the original URL, since the snapshot keeps its markup.
func snapshotResult(c *cleaner.Cleaner, html, sourceURL string) (*models.ExtractionResult, error) {
	doc, err := c.Markdown(narrowToRoot(html, sourceURL), sourceURL, cleaner.ModeReadability)
	if err != nil {
		return nil, err
	}
	if doc.Markdown == "" {
		return nil, nil
	}
	title := doc.Title
	if title == "" {
		title = cleaner.ExtractTitle(html)
	}
	return &models.ExtractionResult{Content: doc.Markdown, Title: title, FinalURL: sourceURL}, nil
}

// ArticleStrategies returns the article chain in priority order:
// dom, reader, cache, wayback.
func ArticleStrategies(c *cleaner.Cleaner, f Fetcher, settleBase time.Duration, readerLimiter *rate.Limiter) []Strategy {
	return []Strategy{
		&DOMStrategy{Cleaner: c, SettleBase: settleBase},
		&ReaderStrategy{Fetcher: f, Cleaner: c, Limiter: readerLimiter},
		&CacheStrategy{Fetcher: f, Cleaner: c},
		&WaybackStrategy{Fetcher: f, Cleaner: c},
	}
}

// settleFor escalates the settle wait with the attempt number.
func settleFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultSettleBase
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

func fetchFailed(strategy string, err error) *models.RetrievalError {
	return models.NewRetrievalError(models.ErrCodeFetchFailed, strategy+" fetch failed", err)
}
