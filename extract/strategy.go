package extract

import (
	"context"

	"github.com/use-agent/retriever/models"
)

// Strategy is one independent way of satisfying a task. Attempt returns
// (nil, nil) when it has no candidate; errors are driver or input
// failures. Strategies never read each other's partial output.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, drv Driver, task *models.RetrievalTask) (*models.ExtractionResult, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, drv Driver, task *models.RetrievalTask) (*models.ExtractionResult, error)
}

func (s StrategyFunc) Name() string { return s.Label }

func (s StrategyFunc) Attempt(ctx context.Context, drv Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	return s.Fn(ctx, drv, task)
}
