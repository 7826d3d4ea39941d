package scraper

import (
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/retriever/models"
)

// maxRecordedRequests bounds the recorder so long-lived players that keep
// fetching segments cannot grow it without limit.
const maxRecordedRequests = 2000

// streamRecorder collects network requests observed on a page, keyed by
// request id, in arrival order.
type streamRecorder struct {
	mu    sync.Mutex
	byID  map[proto.NetworkRequestID]*models.StreamDescriptor
	order []proto.NetworkRequestID
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{byID: make(map[proto.NetworkRequestID]*models.StreamDescriptor)}
}

func (r *streamRecorder) onRequest(e *proto.NetworkRequestWillBeSent) {
	if e.Request == nil || !strings.HasPrefix(e.Request.URL, "http") {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.byID[e.RequestID]; ok {
		// Redirect: the same id is reused for the new location.
		d.URL = e.Request.URL
		return
	}
	if len(r.order) >= maxRecordedRequests {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.byID, oldest)
	}
	r.byID[e.RequestID] = &models.StreamDescriptor{
		RequestID:    string(e.RequestID),
		URL:          e.Request.URL,
		ResourceType: string(e.Type),
	}
	r.order = append(r.order, e.RequestID)
}

func (r *streamRecorder) onResponse(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[e.RequestID]
	if !ok {
		return
	}
	d.MimeType = e.Response.MIMEType
	d.Status = e.Response.Status
	if e.Type != "" {
		d.ResourceType = string(e.Type)
	}
	if size := sizeFromHeaders(e.Response.Headers); size > 0 {
		d.Size = size
	}
}

// snapshot returns copies of the recorded descriptors accepted by filter.
func (r *streamRecorder) snapshot(filter func(models.StreamDescriptor) bool) []models.StreamDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.StreamDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d := *r.byID[id]
		if filter == nil || filter(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *streamRecorder) reset() {
	r.mu.Lock()
	r.byID = make(map[proto.NetworkRequestID]*models.StreamDescriptor)
	r.order = nil
	r.mu.Unlock()
}

// sizeFromHeaders reads the full resource size, preferring the total in
// Content-Range ("bytes 0-1023/48213") over Content-Length since players
// fetch media in ranges.
func sizeFromHeaders(h proto.NetworkHeaders) int64 {
	var contentLength, rangeTotal string
	for k, v := range h {
		switch strings.ToLower(k) {
		case "content-range":
			if i := strings.LastIndexByte(v.Str(), '/'); i >= 0 {
				rangeTotal = v.Str()[i+1:]
			}
		case "content-length":
			contentLength = v.Str()
		}
	}
	for _, s := range []string{rangeTotal, contentLength} {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
