package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// TaskRunner processes one task to a terminal status. Runner implements it.
type TaskRunner interface {
	Run(ctx context.Context, task *models.RetrievalTask) models.TaskStatus
}

// Scheduler fans tasks out to concurrent Task Runners. Its limit bounds
// task parallelism only; browser parallelism is bounded by the Gate, so a
// higher limit means a longer queue at the gate.
type Scheduler struct {
	runner      TaskRunner
	concurrency int
	taskTimeout time.Duration
	limiter     *rate.Limiter
}

// NewScheduler creates a Scheduler. A StartsPerSecond above zero paces
// task starts.
func NewScheduler(runner TaskRunner, cfg config.SchedulerConfig) *Scheduler {
	s := &Scheduler{
		runner:      runner,
		concurrency: cfg.Concurrency,
		taskTimeout: cfg.TaskTimeout,
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if cfg.StartsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.StartsPerSecond), 1)
	}
	return s
}

// Concurrency returns the task limit.
func (s *Scheduler) Concurrency() int { return s.concurrency }

// Run processes every task and returns their statuses in input order with
// a summary. One task's failure never stops another; a canceled ctx marks
// the tasks not yet started as CANCELED. onDone, when set, is called
// concurrently as each task finishes.
func (s *Scheduler) Run(ctx context.Context, tasks []*models.RetrievalTask, onDone func(i int, st models.TaskStatus)) ([]models.TaskStatus, models.BatchSummary) {
	statuses := make([]models.TaskStatus, len(tasks))
	done := func(i int, st models.TaskStatus) {
		statuses[i] = st
		if onDone != nil {
			onDone(i, st)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, task := range tasks {
		if err := s.pace(ctx); err != nil {
			done(i, canceledStatus(task, err))
			continue
		}
		g.Go(func() error {
			done(i, s.runOne(ctx, task))
			return nil
		})
	}
	_ = g.Wait()

	summary := models.Summarize(statuses)
	slog.Info("batch finished",
		"total", summary.Total, "succeeded", summary.Succeeded,
		"skipped", summary.Skipped, "failed", summary.Failed, "status", summary.Status,
	)
	return statuses, summary
}

func (s *Scheduler) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// runOne isolates a task: its timeout and any panic stay with it.
func (s *Scheduler) runOne(ctx context.Context, task *models.RetrievalTask) (st models.TaskStatus) {
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "url", task.URL, "panic", r)
			st = models.TaskStatus{
				URL:    task.URL,
				Status: models.StatusFailed,
				Error:  &models.ErrorDetail{Code: models.ErrCodeInternal, Message: fmt.Sprintf("task panicked: %v", r)},
			}
		}
	}()
	return s.runner.Run(ctx, task)
}

func canceledStatus(task *models.RetrievalTask, err error) models.TaskStatus {
	return models.TaskStatus{
		URL:    task.URL,
		Status: models.StatusFailed,
		Error:  &models.ErrorDetail{Code: models.ErrCodeCanceled, Message: "batch canceled before task started: " + err.Error()},
	}
}

// NewTasks builds one task per item. All tasks share the ingestion date.
func NewTasks(kind models.TaskKind, items []models.BatchItem, date time.Time) []*models.RetrievalTask {
	tasks := make([]*models.RetrievalTask, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, &models.RetrievalTask{
			ID:       uuid.NewString(),
			URL:      it.URL,
			Kind:     kind,
			Title:    it.Title,
			Category: it.Category,
			Feed:     it.Feed,
			Date:     date,
		})
	}
	return tasks
}
