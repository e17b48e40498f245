// Package scheduler runs the probe loop: staggered first checks, a bounded
// worker pool, and periodic store maintenance.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/probe"
	"github.com/hamed0406/healthagent/internal/repo"
)

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrInFlight      = errors.New("check already in flight")
)

const defaultStoreTimeout = 5 * time.Second

// Observer receives every fresh result, whether or not it was stored.
type Observer interface {
	Observe(ctx context.Context, r domain.CheckResult) []domain.Event
}

type Options struct {
	Interval           time.Duration
	Stagger            time.Duration
	Workers            int
	Retention          time.Duration
	CompactionSchedule string
}

type Scheduler struct {
	Logger   *zap.Logger
	Targets  []domain.Target
	Checker  probe.Checker
	Results  repo.ResultStore
	Observer Observer
	opts     Options

	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]bool
	pruning  atomic.Bool
	cycles   atomic.Int64

	storeTimeout time.Duration
	now          func() time.Time
}

func New(
	logger *zap.Logger,
	targets []domain.Target,
	checker probe.Checker,
	results repo.ResultStore,
	obs Observer,
	opts Options,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Stagger < 0 {
		opts.Stagger = 0
	}
	return &Scheduler{
		Logger:   logger,
		Targets:  targets,
		Checker:  checker,
		Results:  results,
		Observer: obs,
		opts:     opts,
		sem:      make(chan struct{}, opts.Workers),
		inFlight: make(map[string]bool, len(targets)),

		storeTimeout: defaultStoreTimeout,
		now:          time.Now,
	}
}

// Run dispatches targets until ctx is cancelled, then waits for in-flight
// probes to finish. Each probe is bounded by its own timeout, not by ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.Targets) == 0 {
		s.Logger.Info("scheduler_no_targets")
		<-ctx.Done()
		return nil
	}

	stopCron, err := s.startCompaction(ctx)
	if err != nil {
		return err
	}
	defer stopCron()

	start := s.now()
	next := make([]time.Time, len(s.Targets))
	for i := range s.Targets {
		next[i] = start.Add(time.Duration(i) * s.opts.Stagger)
	}
	dispatched := make(map[string]struct{}, len(s.Targets))

	s.Logger.Info("scheduler_started",
		zap.Int("targets", len(s.Targets)),
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("stagger", s.opts.Stagger),
		zap.Int("workers", s.opts.Workers),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopping")
			s.wg.Wait()
			s.Logger.Info("scheduler_stopped")
			return nil
		case <-timer.C:
		}

		now := s.now()
		for i, t := range s.Targets {
			if now.Before(next[i]) {
				continue
			}
			for !now.Before(next[i]) {
				next[i] = next[i].Add(s.opts.Interval)
			}
			if !s.dispatch(ctx, t) {
				continue
			}
			dispatched[t.Name] = struct{}{}
		}

		if len(dispatched) == len(s.Targets) {
			clear(dispatched)
			s.cycles.Add(1)
			s.maintain(ctx)
		}

		timer.Reset(earliest(next).Sub(s.now()))
	}
}

// dispatch hands t to the worker pool unless a previous check of t is
// still running.
func (s *Scheduler) dispatch(ctx context.Context, t domain.Target) bool {
	if !s.claim(t.Name) {
		s.Logger.Debug("probe_skipped_in_flight", zap.String("target", t.Name))
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(t.Name)

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-s.sem }()

		s.run(context.WithoutCancel(ctx), t)
	}()
	return true
}

// CheckNow probes the named target immediately through the normal path.
func (s *Scheduler) CheckNow(ctx context.Context, name string) (domain.CheckResult, error) {
	t, ok := s.target(name)
	if !ok {
		return domain.CheckResult{}, ErrUnknownTarget
	}
	if !s.claim(name) {
		return domain.CheckResult{}, ErrInFlight
	}
	defer s.release(name)
	return s.run(ctx, t), nil
}

func (s *Scheduler) run(ctx context.Context, t domain.Target) domain.CheckResult {
	pctx, cancel := context.WithTimeout(ctx, budget(t))
	defer cancel()

	r := s.Checker.Check(pctx, t)

	lat, _ := r.Latency()
	s.Logger.Debug("probe_checked",
		zap.String("target", t.Name),
		zap.String("kind", string(t.Kind)),
		zap.Bool("success", r.Success),
		zap.Int64("latency_ms", lat),
		zap.String("error", r.Error),
	)

	if s.Observer != nil {
		s.Observer.Observe(ctx, r)
	}

	// a slow or unreachable store costs at most storeTimeout per check
	sctx, scancel := context.WithTimeout(ctx, s.storeTimeout)
	defer scancel()
	if err := s.Results.Append(sctx, r); err != nil {
		s.Logger.Warn("store_append_error", zap.String("target", t.Name), zap.Error(err))
	}
	return r
}

func (s *Scheduler) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.inFlight, name)
	s.mu.Unlock()
}

func (s *Scheduler) target(name string) (domain.Target, bool) {
	for _, t := range s.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return domain.Target{}, false
}

// Cycles reports how many full dispatch cycles have completed.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

// budget bounds one scheduled check, retries included.
func budget(t domain.Target) time.Duration {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := time.Duration(t.Retries + 1)
	return n*timeout + time.Duration(t.Retries)*t.RetryBackoff + time.Second
}

func earliest(ts []time.Time) time.Time {
	first := ts[0]
	for _, t := range ts[1:] {
		if t.Before(first) {
			first = t
		}
	}
	return first
}
