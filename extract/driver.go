// Package extract holds the Extractor Chain and the Validator: ordered
// strategies that each try to turn a URL into article markdown or a media
// stream, and the quality rules a candidate must pass.
package extract

import (
	"context"
	"io"
	"time"

	"github.com/use-agent/retriever/models"
	"github.com/ysmood/gson"
)

// Driver is the browser surface a strategy may use. scraper.Session
// implements it; it is only ever handed to a strategy while the caller
// holds the Session Gate.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitStable(ctx context.Context, cond models.WaitCondition, timeout time.Duration) error
	Evaluate(ctx context.Context, js string) (gson.JSON, error)
	ReadNetworkStreams(filter func(models.StreamDescriptor) bool) []models.StreamDescriptor
	RunActions(ctx context.Context, actions []models.Action) error
	CurrentURL() string
}

// Fetcher performs plain HTTP GETs for strategies that do not need the
// browser. scraper.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Downloader streams a URL into w. scraper.Fetcher implements it.
type Downloader interface {
	Download(ctx context.Context, url string, headers map[string]string, w io.Writer) (int64, error)
}

// Planner chooses the interaction sequence for a loaded page. Its
// reasoning is opaque to the chain; only the action list matters.
type Planner interface {
	Plan(ctx context.Context, state models.PageState) ([]models.Action, error)
}

// str returns j as a string, or "" when it holds anything else.
func str(j gson.JSON) string {
	if s, ok := j.Val().(string); ok {
		return s
	}
	return ""
}
