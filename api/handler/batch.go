package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/retriever/cache"
	"github.com/use-agent/retriever/engine"
	"github.com/use-agent/retriever/feeds"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/webhook"
)

// maxBatchSize bounds the URLs and items of one request together.
const maxBatchSize = 100

// BatchRunner runs a batch to completion. *engine.Scheduler implements it.
type BatchRunner interface {
	Run(ctx context.Context, tasks []*models.RetrievalTask, onDone func(i int, st models.TaskStatus)) ([]models.TaskStatus, models.BatchSummary)
}

// PostBatch returns a handler for POST /api/v1/batch.
// It validates the request, registers a job and runs the batch in the
// background under ctx; the response only carries the job id.
func PostBatch(ctx context.Context, runner BatchRunner, jobs *cache.Jobs, notifier *webhook.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortInvalid(c, "invalid request: "+err.Error())
			return
		}

		kind, err := models.ParseKind(req.Kind)
		if err != nil {
			abortInvalid(c, err.Error())
			return
		}

		items := feeds.SingleItems(req.URLs, req.Category)
		items = append(items, (&feeds.File{Items: req.Items}).Resolve(req.Category)...)
		switch {
		case len(items) == 0:
			abortInvalid(c, "at least one url is required")
			return
		case len(items) > maxBatchSize:
			abortInvalid(c, "maximum 100 URLs per batch")
			return
		}

		tasks := engine.NewTasks(kind, items, time.Now())
		job := jobs.Create(kind, len(tasks))

		go runBatch(ctx, runner, jobs, notifier, job.ID, tasks)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: job.Status,
			Total:  job.Total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(jobs *cache.Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := jobs.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.BatchStatusResponse{
			ID:        job.ID,
			Kind:      job.Kind,
			Status:    job.Status,
			Completed: job.Completed,
			Total:     job.Total,
			Summary:   job.Summary,
			Results:   job.Results,
		})
	}
}

func runBatch(ctx context.Context, runner BatchRunner, jobs *cache.Jobs, notifier *webhook.Notifier, id string, tasks []*models.RetrievalTask) {
	_, summary := runner.Run(ctx, tasks, func(i int, st models.TaskStatus) {
		jobs.Record(id, i, st)
	})

	job, ok := jobs.Finish(id, summary)
	if !ok {
		slog.Warn("batch job evicted before completion", "id", id)
		return
	}
	slog.Info("batch job finished",
		"id", id,
		"status", summary.Status,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"total", summary.Total,
	)
	notifier.Notify(webhook.BatchCompleted(job))
}

func abortInvalid(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}
