package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievalError_WrapAndAnnotate(t *testing.T) {
	base := NewRetrievalError(ErrCodeDriverTimeout, "navigate", context.DeadlineExceeded)
	at := base.At("dom", 2)

	assert.Empty(t, base.Strategy, "At must not mutate the receiver")
	assert.Equal(t, "dom", at.Strategy)
	assert.Equal(t, 2, at.Attempt)
	assert.ErrorIs(t, at, context.DeadlineExceeded)
	assert.Contains(t, at.Error(), "strategy=dom attempt=2")

	detail := at.ToDetail()
	assert.Equal(t, ErrCodeDriverTimeout, detail.Code)
	assert.Equal(t, "dom", detail.Strategy)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewRetrievalError(ErrCodeMuxing, "ffmpeg", nil))
	assert.Equal(t, ErrCodeMuxing, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))

	re := AsRetrievalError(errors.New("plain"))
	require.NotNil(t, re)
	assert.Equal(t, ErrCodeInternal, re.Code)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{ErrCodeDriverTimeout, true},
		{ErrCodeDriverProtocol, true},
		{ErrCodeTooShort, true},
		{ErrCodeErrorMarker, true},
		{ErrCodeChainExhausted, true},
		{ErrCodeMuxing, false},
		{ErrCodeInvalidInput, false},
		{ErrCodeCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.code))
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all ok", []string{StatusSucceeded, StatusSkipped}, BatchCompleted},
		{"some failed", []string{StatusSucceeded, StatusFailed}, BatchPartial},
		{"all failed", []string{StatusFailed, StatusFailed}, BatchFailed},
		{"empty", nil, BatchCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in []TaskStatus
			for _, s := range tt.statuses {
				in = append(in, TaskStatus{Status: s})
			}
			got := Summarize(in)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, len(tt.statuses), got.Total)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindArticle, k)

	k, err = ParseKind("video")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, k)

	_, err = ParseKind("podcast")
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))
}
