package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type DispatcherConfig struct {
	Workers        int
	Queue          int
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// DispatchStats counts outcomes since start.
type DispatchStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`  // gave up after every attempt
	Dropped   int64 `json:"dropped"` // queue was full
}

// Dispatcher delivers queued events on its own worker pool, retrying
// failures with exponential backoff.
type Dispatcher struct {
	log      *zap.Logger
	queue    chan Delivery
	workers  int
	attempts int
	timeout  time.Duration
	strategy RetryStrategy

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

var _ Enqueuer = (*Dispatcher)(nil)

func NewDispatcher(cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.Queue < 1 {
		cfg.Queue = 64
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	return &Dispatcher{
		log:      log,
		queue:    make(chan Delivery, cfg.Queue),
		workers:  cfg.Workers,
		attempts: cfg.Attempts,
		timeout:  cfg.AttemptTimeout,
		strategy: &ExponentialBackoff{
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   2,
		},
	}
}

// Enqueue never blocks. A full queue drops the delivery.
func (d *Dispatcher) Enqueue(dl Delivery) bool {
	select {
	case d.queue <- dl:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("alert_queue_full",
			zap.String("event_id", dl.Event.ID),
			zap.String("webhook", dl.Hook),
			zap.String("target", dl.Event.Target.Name),
		)
		return false
	}
}

// Run starts the workers and blocks until ctx is done and every worker has
// returned. Queued deliveries left at shutdown are dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case dl := <-d.queue:
					d.deliver(ctx, dl)
				}
			}
		}()
	}
	wg.Wait()
	if n := len(d.queue); n > 0 {
		d.log.Warn("alert_queue_abandoned", zap.Int("pending", n))
	}
	d.log.Info("dispatcher_stopped")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, dl Delivery) {
	fields := []zap.Field{
		zap.String("event_id", dl.Event.ID),
		zap.String("event", string(dl.Event.Type)),
		zap.String("target", dl.Event.Target.Name),
		zap.String("webhook", dl.Hook),
	}
	var err error
	for attempt := 0; attempt < d.attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, d.timeout)
		err = dl.Sink.Deliver(actx, dl.Event)
		cancel()
		if err == nil {
			d.delivered.Add(1)
			d.log.Info("alert_delivered", append(fields, zap.Int("attempt", attempt+1))...)
			return
		}
		d.log.Warn("alert_delivery_error", append(fields, zap.Int("attempt", attempt+1), zap.Error(err))...)
		if attempt == d.attempts-1 {
			break
		}
		if !sleep(ctx, d.strategy.NextRetry(attempt)) {
			d.failed.Add(1)
			d.log.Warn("alert_delivery_aborted", fields...)
			return
		}
	}
	d.failed.Add(1)
	d.log.Error("alert_delivery_dropped", append(fields, zap.Int("attempts", d.attempts), zap.Error(err))...)
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
