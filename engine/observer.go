package engine

import (
	"time"

	"github.com/use-agent/retriever/models"
)

// Observer receives engine events. metrics.Collector implements it; tests
// use it to audit session hold intervals.
type Observer interface {
	SessionAcquired(holder string, at time.Time, waited time.Duration)
	SessionReleased(holder string, at time.Time, held time.Duration, retired bool)
	AttemptFinished(kind models.TaskKind, attempt int, outcome models.Outcome)
	TaskFinished(kind models.TaskKind, status models.TaskStatus)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) SessionAcquired(string, time.Time, time.Duration) {}
func (NopObserver) SessionReleased(string, time.Time, time.Duration, bool) {}
func (NopObserver) AttemptFinished(models.TaskKind, int, models.Outcome) {}
func (NopObserver) TaskFinished(models.TaskKind, models.TaskStatus) {}
