package extract

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/retriever/cleaner"
)

// contentRoots maps article hosts to the element holding the story body.
// Matching narrows the HTML before readability so recommendations and
// comment threads never reach the markdown.
var contentRoots = []struct {
	host     string
	selector string
}{
	{"medium.com", "article"},
	{"towardsdatascience.com", "article"},
	{"substack.com", "div.available-content"},
	{"dev.to", "#article-body"},
	{"hashnode.dev", "#post-content-wrapper"},
	{"mp.weixin.qq.com", "#js_content"},
}

// contentRootFor returns the content-root selector for rawURL's host, or "".
func contentRootFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, r := range contentRoots {
		if host == r.host || strings.HasSuffix(host, "."+r.host) {
			return r.selector
		}
	}
	return ""
}

// narrowToRoot keeps only the content root of html when the host has one
// and it matched; otherwise html is returned unchanged.
func narrowToRoot(html, sourceURL string) string {
	sel := contentRootFor(sourceURL)
	if sel == "" {
		return html
	}
	root, ok, err := cleaner.SelectRoot(html, sel)
	if err != nil {
		slog.Debug("content root selection failed", "url", sourceURL, "selector", sel, "error", err)
		return html
	}
	if !ok {
		return html
	}
	return root
}
