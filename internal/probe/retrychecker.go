package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

// RetryChecker re-runs a failed probe up to target.Retries more times,
// waiting target.RetryBackoff between attempts.
type RetryChecker struct {
	Inner Checker
}

func (r *RetryChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	attempts := t.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var last domain.CheckResult
	for i := 1; i <= attempts; i++ {
		last = r.Inner.Check(ctx, t)
		last.Attempts = i
		if last.Success || i == attempts {
			break
		}
		if !wait(ctx, t.RetryBackoff) {
			break
		}
	}
	if !last.Success && last.Attempts > 1 {
		last.Error = fmt.Sprintf("%s (after %d attempts)", last.Error, last.Attempts)
	}
	return last
}

// wait returns false when ctx ends before d elapses.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
