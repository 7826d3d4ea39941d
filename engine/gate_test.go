package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/extract"
	"github.com/use-agent/retriever/models"
)

func TestGate_MutualExclusion(t *testing.T) {
	det := &overlapDetector{}
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{detector: det, navDelay: time.Millisecond} }}
	obs := newRecordingObserver()
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, obs)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.With(context.Background(), fmt.Sprintf("task-%d", i), models.KindArticle,
				func(ctx context.Context, drv extract.Driver) error {
					return drv.Navigate(ctx, "https://example.com", 0)
				})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), det.peak.Load(), "two tasks held the session at once")
	assert.Equal(t, 0, g.Holding())
	assert.Equal(t, 0, g.Waiting())
	assert.Equal(t, 1, f.count(), "the session is reused across holders")
	obs.requireDisjoint(t)
}

func TestGate_CapacityBoundsHolders(t *testing.T) {
	det := &overlapDetector{}
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{detector: det, navDelay: 5 * time.Millisecond} }}
	g := NewGate(config.GateConfig{Capacity: 2}, f.open, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.With(context.Background(), fmt.Sprintf("task-%d", i), models.KindArticle,
				func(ctx context.Context, drv extract.Driver) error {
					return drv.Navigate(ctx, "https://example.com", 0)
				})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, det.peak.Load(), int32(2))
	assert.LessOrEqual(t, f.count(), 2)
}

func TestGate_ReleasedOnDriverTimeout(t *testing.T) {
	h := &fakeHandle{navDelay: time.Hour}
	f := &handleFactory{mk: func() *fakeHandle { return h }}
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.With(ctx, "slow", models.KindArticle, func(ctx context.Context, drv extract.Driver) error {
		return drv.Navigate(ctx, "https://example.com", 0)
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeDriverTimeout, models.CodeOf(err))

	// The failure is observable only after release and reset.
	assert.Equal(t, 0, g.Holding())
	assert.Equal(t, int32(1), h.resets.Load())

	h.navDelay = 0
	done := make(chan error, 1)
	go func() {
		done <- g.With(context.Background(), "next", models.KindArticle, func(context.Context, extract.Driver) error { return nil })
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("gate was not released after a driver timeout")
	}
}

func TestGate_ReleasedOnPanic(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{} }}
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, nil)

	err := g.With(context.Background(), "crash", models.KindVideo, func(context.Context, extract.Driver) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInternal, models.CodeOf(err))
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 0, g.Holding())

	err = g.With(context.Background(), "after", models.KindVideo, func(context.Context, extract.Driver) error { return nil })
	assert.NoError(t, err)
}

func TestGate_WaitCanceled(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{} }}
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, nil)

	holding := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = g.With(context.Background(), "holder", models.KindArticle, func(context.Context, extract.Driver) error {
			close(holding)
			<-unblock
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := g.With(ctx, "waiter", models.KindArticle, func(context.Context, extract.Driver) error {
		ran = true
		return nil
	})
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
	assert.False(t, ran)
	assert.Equal(t, 0, g.Waiting())
	assert.Equal(t, 1, g.Holding())

	close(unblock)
	require.Eventually(t, func() bool { return g.Holding() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGate_RetiresUnhealthySession(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{} }}
	g := NewGate(config.GateConfig{Capacity: 1, RetireErrScore: 2}, f.open, nil)

	fail := func(context.Context, extract.Driver) error {
		return models.NewRetrievalError(models.ErrCodeDriverProtocol, "ws closed", nil)
	}
	require.Error(t, g.With(context.Background(), "a", models.KindArticle, fail))
	require.Error(t, g.With(context.Background(), "b", models.KindArticle, fail))
	require.NoError(t, g.With(context.Background(), "c", models.KindArticle, func(context.Context, extract.Driver) error { return nil }))

	assert.Equal(t, 2, f.count())
	assert.True(t, f.handles[0].closed.Load())
	assert.False(t, f.handles[1].closed.Load())
	assert.Equal(t, int64(1), g.Stats().Retired)
}

func TestGate_ContentFailureKeepsSession(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{} }}
	g := NewGate(config.GateConfig{Capacity: 1, RetireErrScore: 1}, f.open, nil)

	tooShort := func(context.Context, extract.Driver) error {
		return models.NewRetrievalError(models.ErrCodeChainExhausted, "all rejected",
			models.NewRetrievalError(models.ErrCodeTooShort, "short", nil))
	}
	for i := 0; i < 3; i++ {
		require.Error(t, g.With(context.Background(), "t", models.KindArticle, tooShort))
	}
	assert.Equal(t, 1, f.count())
}

func TestGate_ResetFailureRetires(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{resetErr: errors.New("tab crashed")} }}
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, nil)

	require.NoError(t, g.With(context.Background(), "a", models.KindArticle, func(context.Context, extract.Driver) error { return nil }))
	require.NoError(t, g.With(context.Background(), "b", models.KindArticle, func(context.Context, extract.Driver) error { return nil }))
	assert.Equal(t, 2, f.count())
}

func TestGate_Close(t *testing.T) {
	f := &handleFactory{mk: func() *fakeHandle { return &fakeHandle{} }}
	g := NewGate(config.GateConfig{Capacity: 1}, f.open, nil)
	require.NoError(t, g.With(context.Background(), "a", models.KindArticle, func(context.Context, extract.Driver) error { return nil }))

	g.Close()
	assert.True(t, f.handles[0].closed.Load())
	err := g.With(context.Background(), "b", models.KindArticle, func(context.Context, extract.Driver) error { return nil })
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
}

func TestDriverFault(t *testing.T) {
	assert.False(t, driverFault(nil))
	assert.True(t, driverFault(models.NewRetrievalError(models.ErrCodeDriverTimeout, "x", nil)))
	wrapped := models.NewRetrievalError(models.ErrCodeChainExhausted, "all",
		models.NewRetrievalError(models.ErrCodeDriverProtocol, "ws", nil))
	assert.True(t, driverFault(wrapped))
	assert.False(t, driverFault(models.NewRetrievalError(models.ErrCodeTooShort, "x", nil)))
}
