// Package cache holds batch jobs in memory so their progress can be polled.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/retriever/models"
)

// Jobs is an in-memory store of batch jobs. It is safe for concurrent use.
// Jobs older than ttl are evicted by a background loop.
type Jobs struct {
	mu      sync.RWMutex
	jobs    map[string]*models.BatchJob
	maxJobs int
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// New creates a job store holding at most maxJobs jobs and starts the
// eviction loop, which runs every ttl/12 (at least every minute).
func New(maxJobs int, ttl time.Duration) *Jobs {
	if maxJobs <= 0 {
		maxJobs = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Jobs{
		jobs:    make(map[string]*models.BatchJob),
		maxJobs: maxJobs,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Create registers a new processing job with total slots.
func (c *Jobs) Create(kind models.TaskKind, total int) models.BatchJob {
	job := &models.BatchJob{
		ID:        "batch-" + uuid.NewString(),
		Kind:      kind,
		Status:    models.BatchProcessing,
		Total:     total,
		Results:   make([]models.TaskStatus, total),
		CreatedAt: time.Now().Unix(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.jobs) >= c.maxJobs {
		c.evictOldestLocked()
	}
	c.jobs[job.ID] = job
	return snapshot(job)
}

// Get returns a copy of the job.
func (c *Jobs) Get(id string) (models.BatchJob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	job, ok := c.jobs[id]
	if !ok {
		return models.BatchJob{}, false
	}
	return snapshot(job), true
}

// Record stores the status of task i.
func (c *Jobs) Record(id string, i int, st models.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok || i < 0 || i >= len(job.Results) {
		return
	}
	if job.Results[i].Status == "" {
		job.Completed++
	}
	job.Results[i] = st
}

// Finish marks the job done with the batch summary.
func (c *Jobs) Finish(id string, summary models.BatchSummary) (models.BatchJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok {
		return models.BatchJob{}, false
	}
	job.Status = summary.Status
	job.Summary = &summary
	return snapshot(job), true
}

// Len returns the number of stored jobs.
func (c *Jobs) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}

// Stop ends the eviction loop.
func (c *Jobs) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// evictOldestLocked drops the oldest finished job, or the oldest job when
// none has finished. Caller must hold c.mu.
func (c *Jobs) evictOldestLocked() {
	var victim *models.BatchJob
	for _, job := range c.jobs {
		if victim == nil {
			victim = job
			continue
		}
		victimDone := victim.Status != models.BatchProcessing
		jobDone := job.Status != models.BatchProcessing
		if jobDone && !victimDone || jobDone == victimDone && job.CreatedAt < victim.CreatedAt {
			victim = job
		}
	}
	if victim != nil {
		delete(c.jobs, victim.ID)
	}
}

// evictExpired drops finished jobs created before now-ttl. Running batches
// stay until they finish, however long they take.
func (c *Jobs) evictExpired(now time.Time) int {
	cutoff := now.Add(-c.ttl).Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, job := range c.jobs {
		if job.Status != models.BatchProcessing && job.CreatedAt < cutoff {
			delete(c.jobs, id)
			n++
		}
	}
	return n
}

func (c *Jobs) cleanupLoop() {
	every := c.ttl / 12
	if every > time.Minute || every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.evictExpired(now)
		}
	}
}

func snapshot(job *models.BatchJob) models.BatchJob {
	cp := *job
	cp.Results = append([]models.TaskStatus(nil), job.Results...)
	if job.Summary != nil {
		s := *job.Summary
		cp.Summary = &s
	}
	return cp
}
