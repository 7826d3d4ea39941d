package models

import (
	"errors"
	"fmt"
)

// Error codes used in task statuses, API responses and internal error handling.
const (
	// Browser Driver failures: retryable up to the attempt bound.
	ErrCodeDriverTimeout  = "DRIVER_TIMEOUT"
	ErrCodeDriverProtocol = "DRIVER_PROTOCOL_ERROR"

	// Content-quality failures: retryable via the next strategy or attempt.
	ErrCodeTooShort       = "TOO_SHORT"
	ErrCodeErrorMarker    = "ERROR_MARKER_DETECTED"
	ErrCodeNoStream       = "NO_STREAM"
	ErrCodeChainExhausted = "CHAIN_EXHAUSTED"
	ErrCodeFetchFailed    = "FETCH_FAILED"

	// Terminal failures.
	ErrCodeExhausted     = "EXHAUSTED"
	ErrCodeMuxing        = "MUXING_FAILURE"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeStorage       = "STORAGE_FAILURE"
	ErrCodeCanceled      = "CANCELED"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeLLMFailure    = "LLM_FAILURE"
	ErrCodeLLMAuth       = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimit  = "LLM_RATE_LIMITED"
	ErrCodeBadEvalFormat = "EVAL_FORMAT_INVALID"
)

// ErrorDetail is the structured error in API responses and task statuses.
type ErrorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Strategy string `json:"strategy,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
}

// RetrievalError is the internal error type carrying an error code and the
// stage (strategy, attempt) at which it happened.
type RetrievalError struct {
	Code     string
	Message  string
	Strategy string
	Attempt  int
	Err      error // wrapped original error
}

func (e *RetrievalError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Strategy != "" {
		msg = fmt.Sprintf("%s [strategy=%s attempt=%d]", msg, e.Strategy, e.Attempt)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// NewRetrievalError creates a new RetrievalError.
func NewRetrievalError(code, message string, err error) *RetrievalError {
	return &RetrievalError{Code: code, Message: message, Err: err}
}

// At returns a copy of e annotated with the strategy and attempt that produced it.
func (e *RetrievalError) At(strategy string, attempt int) *RetrievalError {
	cp := *e
	cp.Strategy = strategy
	cp.Attempt = attempt
	return &cp
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RetrievalError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Strategy: e.Strategy, Attempt: e.Attempt}
}

// CodeOf returns the code of the first RetrievalError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeInternal
}

// AsRetrievalError unwraps err into a RetrievalError, wrapping foreign errors
// as ErrCodeInternal.
func AsRetrievalError(err error) *RetrievalError {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re
	}
	return NewRetrievalError(ErrCodeInternal, err.Error(), err)
}

// IsRetryable reports whether a failure with the given code may be retried
// by the Retry/Fallback Controller.
func IsRetryable(code string) bool {
	switch code {
	case ErrCodeDriverTimeout, ErrCodeDriverProtocol,
		ErrCodeTooShort, ErrCodeErrorMarker, ErrCodeNoStream, ErrCodeChainExhausted,
		ErrCodeFetchFailed:
		return true
	default:
		return false
	}
}
