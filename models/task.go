package models

import (
	"fmt"
	"time"
)

// TaskKind selects which extractor chain and output layout a task uses.
type TaskKind string

const (
	KindArticle TaskKind = "article"
	KindVideo   TaskKind = "video"
)

// ParseKind validates a user-supplied task kind.
func ParseKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case KindArticle, KindVideo:
		return TaskKind(s), nil
	case "":
		return KindArticle, nil
	default:
		return "", NewRetrievalError(ErrCodeInvalidInput, fmt.Sprintf("unknown task kind %q", s), nil)
	}
}

// RetrievalTask is one unit of work, owned by exactly one Task Runner.
type RetrievalTask struct {
	ID         string
	URL        string
	Kind       TaskKind
	OutputPath string
	Attempt    int

	// Article metadata. Title and Category feed the idempotence key.
	Title    string
	Category string
	Feed     string

	// Date is the ingestion date used in output paths.
	Date time.Time
}

// StreamDescriptor describes one media request observed on the page.
type StreamDescriptor struct {
	RequestID    string `json:"request_id"`
	URL          string `json:"url"`
	MimeType     string `json:"mime_type,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Status       int    `json:"status,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// Signals are the quality measurements attached to a candidate result.
type Signals struct {
	Length  int      `json:"length"`
	Markers []string `json:"markers,omitempty"`
}

// ExtractionResult is produced by one strategy and is not modified after it
// is returned.
type ExtractionResult struct {
	Kind     TaskKind `json:"kind"`
	Strategy string   `json:"strategy"`

	// Content is the markdown body for articles.
	Content string `json:"content,omitempty"`

	// StreamURL is the combined or video-only stream; AudioURL is set for
	// split streams.
	StreamURL  string `json:"stream_url,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
	Referer    string `json:"referer,omitempty"`
	StreamSize int64  `json:"stream_size,omitempty"`

	Title    string  `json:"title,omitempty"`
	FinalURL string  `json:"final_url,omitempty"`
	Signals  Signals `json:"signals"`
}

// OutcomeKind tags a FallbackOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Outcome is the tagged result of one attempt:
// Success(Result) | Retryable(Reason) | Fatal(Reason).
//
// Fatal ends the attempt, not the task. Whether the controller starts
// another attempt is decided by Reason.Code alone (see IsRetryable), so a
// chain that exhausted every strategy reports Fatal(CHAIN_EXHAUSTED) and is
// still retried up to the bound.
type Outcome struct {
	Kind   OutcomeKind
	Result *ExtractionResult
	Reason *RetrievalError

	// Tried lists the strategies attempted in order during the attempt.
	Tried []string
}

// Success builds a successful outcome.
func Success(r *ExtractionResult, tried []string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: r, Tried: tried}
}

// Retryable builds a retryable outcome.
func Retryable(reason *RetrievalError, tried []string) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason, Tried: tried}
}

// Fatal builds a fatal outcome.
func Fatal(reason *RetrievalError, tried []string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, Tried: tried}
}

// Action is one DOM interaction step chosen by a planner.
type Action struct {
	// Type is one of: "wait", "click", "click_center", "scroll",
	// "execute_js", "mute_autoplay".
	Type string `json:"type"`

	Selector     string `json:"selector,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
	Amount       int    `json:"amount,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Code         string `json:"code,omitempty"`
}

// Wait condition kinds understood by the Browser Driver.
const (
	WaitLoad        = "load"
	WaitDOMStable   = "dom_stable"
	WaitRequestIdle = "request_idle"
	WaitSelector    = "selector"
	WaitSleep       = "sleep"
)

// WaitCondition describes what "stable" means for a WaitStable call.
type WaitCondition struct {
	Kind     string
	Selector string

	// Settle is the quiet period for dom_stable and request_idle, or the
	// sleep length for sleep.
	Settle time.Duration
}

// PageState is what an interaction planner sees before choosing actions.
type PageState struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Platform string `json:"platform"`
	Attempt  int    `json:"attempt"`

	// Streams is the number of media requests captured so far.
	Streams int `json:"streams"`
}
