package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/extract"
	"github.com/use-agent/retriever/models"
	"golang.org/x/sync/semaphore"
)

// Handle is a browser session lent to one holder at a time.
// scraper.Session implements it.
type Handle interface {
	extract.Driver

	// Prepare mounts per-kind page plumbing at the start of a hold.
	Prepare(ctx context.Context, kind models.TaskKind) error

	// Reset returns the session to a stable point. It must not depend on
	// the holder's context, which may already be done.
	Reset() error

	Close() error
}

// HandleFactory opens a new browser session.
type HandleFactory func(ctx context.Context) (Handle, error)

// slot wraps a Handle with health tracking metadata.
type slot struct {
	id       int64
	handle   Handle
	errScore float64
	useCount int
	created  time.Time
}

// recordSuccess decreases the error score (min 0).
func (s *slot) recordSuccess() {
	s.useCount++
	s.errScore = math.Max(0, s.errScore-0.5)
}

// recordFailure increases the error score.
func (s *slot) recordFailure() {
	s.useCount++
	s.errScore += 1.0
}

func (s *slot) shouldRetire(cfg config.GateConfig) bool {
	if cfg.RetireErrScore > 0 && s.errScore >= cfg.RetireErrScore {
		return true
	}
	if cfg.RetireUses > 0 && s.useCount >= cfg.RetireUses {
		return true
	}
	if cfg.RetireAge > 0 && time.Since(s.created) >= cfg.RetireAge {
		return true
	}
	return false
}

// Gate bounds how many tasks may drive the browser at once. Waiters are
// admitted in FIFO order. Every session it lends is reset before the next
// holder sees it, and unhealthy sessions are closed and replaced.
type Gate struct {
	cfg      config.GateConfig
	factory  HandleFactory
	sem      *semaphore.Weighted
	observer Observer

	idle   chan *slot
	nextID atomic.Int64

	holding atomic.Int64
	waiting atomic.Int64
	retired atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewGate creates a gate of cfg.Capacity holders (min 1). Sessions are
// created lazily through factory.
func NewGate(cfg config.GateConfig, factory HandleFactory, observer Observer) *Gate {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Gate{
		cfg:      cfg,
		factory:  factory,
		sem:      semaphore.NewWeighted(int64(cfg.Capacity)),
		observer: observer,
		idle:     make(chan *slot, cfg.Capacity),
	}
}

// ErrGateClosed is returned by With after Close.
var ErrGateClosed = models.NewRetrievalError(models.ErrCodeCanceled, "session gate closed", nil)

// With acquires the gate for holder, prepares a session for kind and runs
// fn with it. Release happens on every exit path, including a panic in
// fn, which is converted to an INTERNAL_ERROR. The session is parked on a
// stable point before the next holder is admitted.
//
// A context that ends while waiting yields CANCELED without running fn.
func (g *Gate) With(ctx context.Context, holder string, kind models.TaskKind, fn func(ctx context.Context, drv extract.Driver) error) (err error) {
	waitStart := time.Now()
	g.waiting.Add(1)
	acqErr := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if acqErr != nil {
		return models.NewRetrievalError(models.ErrCodeCanceled, "gave up waiting for session gate", acqErr)
	}
	defer g.sem.Release(1)

	if g.isClosed() {
		return ErrGateClosed
	}

	s, err := g.take(ctx)
	if err != nil {
		return err
	}

	g.holding.Add(1)
	acquired := time.Now()
	waited := acquired.Sub(waitStart)
	slog.Debug("session acquired", "holder", holder, "session", s.id, "kind", kind,
		"waited_ms", waited.Milliseconds(), "at", acquired.Format(time.RFC3339Nano))
	g.observer.SessionAcquired(holder, acquired, waited)

	defer func() {
		if r := recover(); r != nil {
			err = models.NewRetrievalError(models.ErrCodeInternal, fmt.Sprintf("panic while holding session: %v", r), nil)
		}
		g.release(holder, s, acquired, err)
	}()

	if err := s.handle.Prepare(ctx, kind); err != nil {
		return err
	}
	return fn(ctx, s.handle)
}

// take returns an idle session or opens a new one.
func (g *Gate) take(ctx context.Context) (*slot, error) {
	select {
	case s := <-g.idle:
		return s, nil
	default:
	}

	h, err := g.factory(ctx)
	if err != nil {
		if re := models.AsRetrievalError(err); re.Code != models.ErrCodeInternal {
			return nil, re
		}
		return nil, models.NewRetrievalError(models.ErrCodeDriverProtocol, "failed to open browser session", err)
	}
	s := &slot{id: g.nextID.Add(1), handle: h, created: time.Now()}
	slog.Debug("session opened", "session", s.id)
	return s, nil
}

// release resets the session, scores it and either parks it for the next
// holder or retires it.
func (g *Gate) release(holder string, s *slot, acquired time.Time, taskErr error) {
	resetErr := s.handle.Reset()
	if resetErr != nil {
		slog.Warn("session reset failed", "holder", holder, "session", s.id, "error", resetErr)
	}

	if resetErr != nil || driverFault(taskErr) {
		s.recordFailure()
	} else {
		s.recordSuccess()
	}

	// A session that could not be parked is not at a stable point.
	retire := resetErr != nil || s.shouldRetire(g.cfg)
	if !retire {
		g.mu.Lock()
		if g.closed {
			retire = true
		} else {
			g.idle <- s
		}
		g.mu.Unlock()
	}
	if retire {
		slog.Debug("retiring session", "session", s.id, "errScore", s.errScore, "useCount", s.useCount)
		_ = s.handle.Close()
		g.retired.Add(1)
	}

	g.holding.Add(-1)
	released := time.Now()
	slog.Debug("session released", "holder", holder, "session", s.id,
		"held_ms", released.Sub(acquired).Milliseconds(), "at", released.Format(time.RFC3339Nano))
	g.observer.SessionReleased(holder, released, released.Sub(acquired), retire)
}

// driverFault reports whether err, or any error it wraps, came from the
// browser connection rather than from content.
func driverFault(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if re, ok := e.(*models.RetrievalError); ok {
			if re.Code == models.ErrCodeDriverTimeout || re.Code == models.ErrCodeDriverProtocol {
				return true
			}
		}
	}
	return false
}

// Holding returns the number of tasks currently holding a session.
func (g *Gate) Holding() int { return int(g.holding.Load()) }

// Waiting returns the number of tasks queued at the gate.
func (g *Gate) Waiting() int { return int(g.waiting.Load()) }

// Stats reports the gate for the health endpoint.
func (g *Gate) Stats() models.GateStats {
	return models.GateStats{
		Capacity: g.cfg.Capacity,
		Holding:  g.Holding(),
		Waiting:  g.Waiting(),
		Retired:  g.retired.Load(),
	}
}

func (g *Gate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close rejects new holders and closes idle sessions. Sessions still held
// are closed when released.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true

	for {
		select {
		case s := <-g.idle:
			_ = s.handle.Close()
		default:
			return
		}
	}
}
