package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const maintenanceTimeout = 5 * time.Minute

// maintain prunes results past retention in the background. A prune that is
// still running when the next cycle completes is not started twice.
func (s *Scheduler) maintain(ctx context.Context) {
	if s.opts.Retention <= 0 {
		return
	}
	if !s.pruning.CompareAndSwap(false, true) {
		s.Logger.Debug("prune_skipped_running")
		return
	}
	cutoff := s.now().Add(-s.opts.Retention)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pruning.Store(false)

		// shutdown cancels a running prune; the next cycle starts over
		pctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()
		n, err := s.Results.Prune(pctx, cutoff)
		if err != nil {
			s.Logger.Warn("store_prune_error", zap.Error(err))
			return
		}
		s.Logger.Info("store_pruned", zap.Int64("deleted", n), zap.Time("older_than", cutoff))
	}()
}

// startCompaction registers the store compaction job. The returned func
// stops the cron runner and waits for a running job.
func (s *Scheduler) startCompaction(ctx context.Context) (func(), error) {
	spec := s.opts.CompactionSchedule
	if spec == "" {
		return func() {}, nil
	}
	cl := cronLogger{s.Logger.Named("cron").Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maintenanceTimeout)
		defer cancel()
		start := time.Now()
		if err := s.Results.Compact(cctx); err != nil {
			s.Logger.Warn("store_compact_error", zap.Error(err))
			return
		}
		s.Logger.Info("store_compacted", zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return nil, fmt.Errorf("compaction schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
