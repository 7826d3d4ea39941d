package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/models"
)

func TestNotify_SignsBatchCompleted(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, Sign("s3cret", body), r.Header.Get(SignatureHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got.Store(body)
	}))
	defer srv.Close()

	job := models.BatchJob{
		ID:      "batch-1",
		Kind:    models.KindArticle,
		Results: []models.TaskStatus{{URL: "https://example.com/a", Status: models.StatusSucceeded}},
		Summary: &models.BatchSummary{Status: models.BatchCompleted, Total: 1, Succeeded: 1},
	}
	n := NewNotifier(srv.URL, "s3cret")
	<-n.Notify(BatchCompleted(job))

	body, ok := got.Load().([]byte)
	require.True(t, ok)
	var ev struct {
		Type  string    `json:"type"`
		JobID string    `json:"job_id"`
		Data  BatchData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &ev))
	assert.Equal(t, EventBatchCompleted, ev.Type)
	assert.Equal(t, "batch-1", ev.JobID)
	assert.Equal(t, models.BatchCompleted, ev.Data.Summary.Status)
	assert.Len(t, ev.Data.Results, 1)
}

func TestNotify_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	<-n.Notify(&Event{Type: EventBatchCompleted, JobID: "batch-2"})
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifier_NilDropsEvents(t *testing.T) {
	n := NewNotifier("", "secret")
	assert.Nil(t, n)
	select {
	case <-n.Notify(&Event{Type: EventBatchCompleted}):
	case <-time.After(time.Second):
		t.Fatal("nil notifier must not block")
	}
}

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("body"))
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), Sign("key", []byte("body")))
	assert.NotEqual(t, Sign("a", []byte("body")), Sign("b", []byte("body")))
}
