package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/repo"
	"github.com/hamed0406/healthagent/internal/stats"
)

var _ repo.ResultStore = (*Store)(nil)

// Store keeps results per target in memory. Writers take the write lock and
// readers share the read lock; a waiting writer blocks new readers.
type Store struct {
	mu      sync.RWMutex
	results map[string][]domain.CheckResult
	now     func() time.Time
}

func New() *Store {
	return &Store{
		results: make(map[string][]domain.CheckResult),
		now:     time.Now,
	}
}

func (m *Store) Append(ctx context.Context, r domain.CheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = m.now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.TargetName] = append(m.results[r.TargetName], r)
	return nil
}

func (m *Store) Query(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error) {
	if window <= 0 {
		window = domain.DefaultWindow
	}
	now := m.now().UTC()
	from := now.Add(-window)

	m.mu.RLock()
	in := make([]domain.CheckResult, 0, len(m.results[name]))
	for _, r := range m.results[name] {
		if !r.CheckedAt.Before(from) && !r.CheckedAt.After(now) {
			in = append(in, r)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(in, func(a, b domain.CheckResult) int {
		return a.CheckedAt.Compare(b.CheckedAt)
	})
	return stats.Compute(name, window, now, in), nil
}

func (m *Store) Latest(ctx context.Context, name string) (domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		latest domain.CheckResult
		found  bool
	)
	for _, r := range m.results[name] {
		if !found || r.CheckedAt.After(latest.CheckedAt) {
			latest = r
			found = true
		}
	}
	if !found {
		return domain.CheckResult{}, repo.ErrNotFound
	}
	return latest, nil
}

func (m *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for name, rs := range m.results {
		kept := rs[:0]
		for _, r := range rs {
			if r.CheckedAt.Before(olderThan) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.results, name)
			continue
		}
		m.results[name] = kept
	}
	return removed, nil
}

// Compact shrinks per-target slices whose capacity outgrew their length.
func (m *Store) Compact(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, rs := range m.results {
		if cap(rs) > 2*len(rs) {
			m.results[name] = slices.Clip(slices.Clone(rs))
		}
	}
	return nil
}

func (m *Store) Close() error { return nil }
