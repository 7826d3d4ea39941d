package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/retriever/models"
)

// classify wraps raw rod/cdp errors into typed RetrievalErrors. The driver
// never retries; callers decide from the code. A nil err yields a nil error.
func classify(err error, msg string) error {
	var re *models.RetrievalError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &re):
		return re
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRetrievalError(models.ErrCodeDriverTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewRetrievalError(models.ErrCodeCanceled, "operation canceled", err)
	default:
		return models.NewRetrievalError(models.ErrCodeDriverProtocol, msg, err)
	}
}

// withTimeout derives the per-operation deadline. A zero timeout keeps the
// parent deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
