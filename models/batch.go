package models

// Task status values reported per URL.
const (
	StatusSucceeded = "succeeded"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Batch status values.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchItem is one input to the Batch Scheduler.
type BatchItem struct {
	URL      string `json:"url" yaml:"url"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Feed     string `json:"feed,omitempty" yaml:"feed,omitempty"`
}

// TaskStatus is the terminal per-URL status of one Task Runner.
type TaskStatus struct {
	URL        string       `json:"url"`
	Status     string       `json:"status"`
	OutputPath string       `json:"output_path,omitempty"`
	Strategy   string       `json:"strategy,omitempty"`
	Attempts   int          `json:"attempts"`
	Tried      []string     `json:"tried,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

// BatchSummary aggregates per-URL statuses.
type BatchSummary struct {
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Summarize computes the batch status: failed only when every item failed,
// partial when some failed.
func Summarize(statuses []TaskStatus) BatchSummary {
	s := BatchSummary{Total: len(statuses)}
	for _, st := range statuses {
		switch st.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	switch {
	case s.Total > 0 && s.Failed == s.Total:
		s.Status = BatchFailed
	case s.Failed > 0:
		s.Status = BatchPartial
	default:
		s.Status = BatchCompleted
	}
	return s
}

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	Kind     string      `json:"kind" binding:"omitempty,oneof=article video"`
	URLs     []string    `json:"urls" binding:"required_without=Items,max=100"`
	Items    []BatchItem `json:"items" binding:"max=100"`
	Category string      `json:"category,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string        `json:"id"`
	Kind      TaskKind      `json:"kind"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Summary   *BatchSummary `json:"summary,omitempty"`
	Results   []TaskStatus  `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch.
type BatchJob struct {
	ID        string
	Kind      TaskKind
	Status    string
	Total     int
	Completed int
	Results   []TaskStatus
	Summary   *BatchSummary
	CreatedAt int64 // unix timestamp
}
