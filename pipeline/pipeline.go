// Package pipeline holds the downstream consumers of retrieved articles:
// translation to Chinese and quality evaluation. Both read committed
// article files, call the chat model and write their own write-once
// outputs next to the articles.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
)

// Chatter is the chat model used by the pipelines. *llm.Client implements it.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error)
}

// FileResult is the outcome of processing one input file.
type FileResult struct {
	Input  string              `json:"input"`
	Output string              `json:"output,omitempty"`
	Status string              `json:"status"`
	Error  *models.ErrorDetail `json:"error,omitempty"`
}

// Failed reports whether the file could not be processed.
func (r FileResult) Failed() bool { return r.Status == models.StatusFailed }

func failedResult(input, output string, err error) FileResult {
	return FileResult{
		Input:  input,
		Output: output,
		Status: models.StatusFailed,
		Error:  models.AsRetrievalError(err).ToDetail(),
	}
}

// runFiles applies fn to every file with at most limit in flight and
// returns the results in input order.
func runFiles(ctx context.Context, name string, files []string, limit int, fn func(context.Context, string) FileResult) []FileResult {
	results := make([]FileResult, len(files))
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = failedResult(f, "", models.NewRetrievalError(models.ErrCodeCanceled, "canceled before start", err))
				return nil
			}
			results[i] = fn(gctx, f)
			slog.Info(name+" file finished", "input", f, "status", results[i].Status)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
