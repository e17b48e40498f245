package alert

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/healthagent/internal/domain"
)

type flakySink struct {
	failFirst int32
	calls     atomic.Int32
	done      chan domain.Event
}

func (s *flakySink) Deliver(ctx context.Context, ev domain.Event) error {
	n := s.calls.Add(1)
	if n <= s.failFirst {
		return errors.New("boom")
	}
	if s.done != nil {
		s.done <- ev
	}
	return nil
}

func fastConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        1,
		Queue:          4,
		Attempts:       3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func startDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.Run(ctx)
	}()
	stop := func() {
		cancel()
		wg.Wait()
	}
	t.Cleanup(stop)
	return stop
}

func TestExponentialBackoff(t *testing.T) {
	b := &ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.NextRetry(0))
	assert.Equal(t, 2*time.Second, b.NextRetry(1))
	assert.Equal(t, 16*time.Second, b.NextRetry(4))
	assert.Equal(t, 30*time.Second, b.NextRetry(5))
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	d := NewDispatcher(fastConfig(), nil)
	sink := &flakySink{failFirst: 2, done: make(chan domain.Event, 1)}
	startDispatcher(t, d)

	require.True(t, d.Enqueue(Delivery{Event: domain.Event{ID: "e1"}, Hook: "ops", Sink: sink}))

	select {
	case ev := <-sink.done:
		assert.Equal(t, "e1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never succeeded")
	}
	assert.Equal(t, int32(3), sink.calls.Load())
	require.Eventually(t, func() bool { return d.Stats().Delivered == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	d := NewDispatcher(fastConfig(), nil)
	sink := &flakySink{failFirst: 100}
	startDispatcher(t, d)

	d.Enqueue(Delivery{Event: domain.Event{ID: "e1"}, Hook: "ops", Sink: sink})

	require.Eventually(t, func() bool { return d.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), sink.calls.Load())
	assert.Zero(t, d.Stats().Delivered)
}

func TestDispatcher_ShutdownInterruptsBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	d := NewDispatcher(cfg, nil)
	sink := &flakySink{failFirst: 100}
	stop := startDispatcher(t, d)

	d.Enqueue(Delivery{Event: domain.Event{ID: "e1"}, Sink: sink})
	require.Eventually(t, func() bool { return sink.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop during backoff")
	}
	assert.Equal(t, int32(1), sink.calls.Load())
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	cfg := fastConfig()
	cfg.Queue = 2
	d := NewDispatcher(cfg, nil) // not running, nothing drains

	sink := &flakySink{}
	assert.True(t, d.Enqueue(Delivery{Sink: sink}))
	assert.True(t, d.Enqueue(Delivery{Sink: sink}))
	assert.False(t, d.Enqueue(Delivery{Sink: sink}))
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_SlowSinkDoesNotBlockEngine(t *testing.T) {
	cfg := fastConfig()
	cfg.Queue = 1
	d := NewDispatcher(cfg, nil)
	block := make(chan struct{})
	defer close(block)
	startDispatcher(t, d)

	slow := sinkFunc(func(ctx context.Context, _ domain.Event) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	e := NewEngine([]domain.Target{web}, []Subscription{{Hook: hook("ops"), Sink: slow}}, d, nil)
	start := time.Now()
	for i := 0; i < 20; i++ {
		e.Observe(context.Background(), result("web", i%2 == 0, 10))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, d.Stats().Dropped)
}

type sinkFunc func(ctx context.Context, ev domain.Event) error

func (f sinkFunc) Deliver(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }
