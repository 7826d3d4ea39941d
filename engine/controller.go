package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
)

// State is a Retry/Fallback Controller state.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	default:
		return "exhausted"
	}
}

// AttemptFunc runs the Extractor Chain once for task. task.Attempt holds
// the 1-based attempt number.
type AttemptFunc func(ctx context.Context, task *models.RetrievalTask) models.Outcome

// Report is the terminal result of one controller run.
type Report struct {
	State    State
	Result   *models.ExtractionResult
	Attempts int

	// Tried lists every strategy run, in order, across all attempts.
	Tried []string

	// Err is set when State is StateExhausted.
	Err *models.RetrievalError
}

// Controller drives a task through bounded attempts:
//
//	Pending -> Attempting -> Succeeded
//	                      -> Attempting (after backoff, on a retryable reason)
//	                      -> Exhausted  (non-retryable reason or attempt bound)
type Controller struct {
	retry    config.RetryConfig
	observer Observer

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller with the given retry policy.
func NewController(retry config.RetryConfig, observer Observer) *Controller {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Controller{retry: retry, observer: observer, sleep: sleepCtx}
}

// Run executes attempt until it succeeds, fails for good, or the per-kind
// attempt bound is reached. It never retries a CANCELED or otherwise
// non-retryable reason.
func (c *Controller) Run(ctx context.Context, task *models.RetrievalTask, attempt AttemptFunc) Report {
	maxAttempts := c.retry.MaxAttempts(string(task.Kind))
	rep := Report{State: StatePending}

	for n := 1; ; n++ {
		rep.State = StateAttempting
		rep.Attempts = n
		task.Attempt = n

		out := attempt(ctx, task)
		rep.Tried = append(rep.Tried, out.Tried...)
		c.observer.AttemptFinished(task.Kind, n, out)

		if out.Kind == models.OutcomeSuccess && out.Result != nil {
			rep.State = StateSucceeded
			rep.Result = out.Result
			return rep
		}

		reason := out.Reason
		if reason == nil {
			reason = models.NewRetrievalError(models.ErrCodeInternal, "attempt returned no result and no reason", nil)
		}

		// The reason code, not out.Kind, decides whether the task goes on.
		if !models.IsRetryable(reason.Code) {
			rep.State = StateExhausted
			rep.Err = reason
			return rep
		}

		if n >= maxAttempts {
			rep.State = StateExhausted
			rep.Err = models.NewRetrievalError(
				models.ErrCodeExhausted,
				fmt.Sprintf("gave up after %d attempts: %s", n, reason.Message),
				reason,
			).At(reason.Strategy, n)
			return rep
		}

		backoff := c.retry.BackoffFor(n)
		slog.Info("attempt failed, retrying",
			"url", task.URL, "kind", task.Kind, "attempt", n, "max_attempts", maxAttempts,
			"reason", reason.Code, "strategy", reason.Strategy, "backoff", backoff.String(),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			rep.State = StateExhausted
			rep.Err = models.NewRetrievalError(models.ErrCodeCanceled, "task canceled during backoff", err).At(reason.Strategy, n)
			return rep
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
