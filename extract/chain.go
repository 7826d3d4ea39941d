package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/use-agent/retriever/models"
)

// Chain evaluates strategies in fixed priority order and short-circuits on
// the first candidate the Validator accepts.
type Chain struct {
	strategies []Strategy
	validator  *Validator
}

// NewChain creates a chain. The order of strategies is the priority order.
func NewChain(v *Validator, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, validator: v}
}

// Names lists the strategy names in priority order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run performs one attempt. Every strategy is tried at most once. The
// outcome is:
//
//   - Success with the first accepted result;
//   - Fatal(CANCELED) when the task was canceled;
//   - Fatal(CHAIN_EXHAUSTED) when every strategy was rejected. The code is
//     retryable, so the controller may start another attempt.
func (c *Chain) Run(ctx context.Context, drv Driver, task *models.RetrievalTask) models.Outcome {
	tried := make([]string, 0, len(c.strategies))
	rejections := make([]string, 0, len(c.strategies))
	var last *models.RetrievalError

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return models.Fatal(canceled(err).At(s.Name(), task.Attempt), tried)
		}
		tried = append(tried, s.Name())

		res, err := s.Attempt(ctx, drv, task)
		if err != nil {
			re := models.AsRetrievalError(err).At(s.Name(), task.Attempt)
			// Any other strategy error, including a rejected action, only
			// ends that strategy.
			if re.Code == models.ErrCodeCanceled {
				return models.Fatal(re, tried)
			}
			if ctx.Err() != nil {
				return models.Fatal(canceled(ctx.Err()).At(s.Name(), task.Attempt), tried)
			}
			last = re
			rejections = append(rejections, s.Name()+": "+re.Error())
			slog.Info("strategy failed",
				"url", task.URL, "strategy", s.Name(), "attempt", task.Attempt, "error", re.Error(),
			)
			continue
		}

		if res == nil {
			last = models.NewRetrievalError(models.ErrCodeTooShort, "no candidate", nil).At(s.Name(), task.Attempt)
			rejections = append(rejections, s.Name()+": no candidate")
			slog.Info("strategy produced no candidate",
				"url", task.URL, "strategy", s.Name(), "attempt", task.Attempt,
			)
			continue
		}

		res.Strategy = s.Name()
		res.Kind = task.Kind
		signals, reject := c.validator.Check(res)
		res.Signals = signals
		if reject != nil {
			last = reject.At(s.Name(), task.Attempt)
			rejections = append(rejections, s.Name()+": "+reject.Error())
			slog.Info("candidate rejected",
				"url", task.URL, "strategy", s.Name(), "attempt", task.Attempt,
				"reason", reject.Code, "length", signals.Length,
			)
			continue
		}
		return models.Success(res, tried)
	}

	reason := models.NewRetrievalError(
		models.ErrCodeChainExhausted,
		fmt.Sprintf("all %d strategies rejected (%s)", len(tried), strings.Join(rejections, "; ")),
		last,
	)
	if last != nil {
		reason = reason.At(last.Strategy, task.Attempt)
	}
	return models.Fatal(reason, tried)
}

func canceled(err error) *models.RetrievalError {
	return models.NewRetrievalError(models.ErrCodeCanceled, "task canceled", err)
}
