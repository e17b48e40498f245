// Package repotest holds the behaviour every ResultStore adapter must share.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/repo"
)

// Run exercises s. The store must be empty and is not closed.
func Run(t *testing.T, s repo.ResultStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("empty", func(t *testing.T) {
		snap, err := s.Query(ctx, "nobody", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Count)
		assert.Equal(t, 0.0, snap.UptimePercent)
		assert.Nil(t, snap.P50LatencyMs)

		_, err = s.Latest(ctx, "nobody")
		assert.True(t, errors.Is(err, repo.ErrNotFound), "want ErrNotFound, got %v", err)
	})

	t.Run("append_query_latest", func(t *testing.T) {
		name := "web"
		outcomes := []bool{true, true, false, false, false}
		for i, ok := range outcomes {
			r := domain.CheckResult{
				TargetName: name,
				Kind:       domain.KindHTTP,
				CheckedAt:  now.Add(time.Duration(i-len(outcomes)) * time.Minute),
				Success:    ok,
				StatusCode: domain.Int(200),
				LatencyMs:  domain.Int64(int64((i + 1) * 10)),
			}
			if !ok {
				r.StatusCode = domain.Int(503)
				r.Error = "unexpected_status: got 503, want 200-399"
			}
			if i == 4 {
				r.LatencyMs = nil
				r.StatusCode = nil
				r.Error = "timeout: context deadline exceeded"
				r.TLS = &domain.TLSInfo{Version: "TLS 1.3", Issuer: "CN=ca", Subject: "CN=web", NotAfter: now.Add(90 * 24 * time.Hour)}
				r.Headers = map[string]string{"Server": "nginx"}
				r.RedirectCount = 2
				r.Attempts = 3
			}
			require.NoError(t, s.Append(ctx, r))
		}
		// outside the window
		require.NoError(t, s.Append(ctx, domain.CheckResult{
			TargetName: name, Kind: domain.KindHTTP, CheckedAt: now.Add(-3 * time.Hour), Success: true, LatencyMs: domain.Int64(9999),
		}))

		snap, err := s.Query(ctx, name, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 5, snap.Count)
		assert.Equal(t, 2, snap.SuccessCount)
		assert.InDelta(t, 40.0, snap.UptimePercent, 1e-9)
		assert.Equal(t, 3, snap.ConsecutiveFailures)
		require.NotNil(t, snap.MaxLatencyMs)
		assert.Equal(t, 40.0, *snap.MaxLatencyMs)
		assert.Equal(t, 10.0, *snap.MinLatencyMs)
		assert.Equal(t, 20.0, *snap.P50LatencyMs)
		require.NotNil(t, snap.LastDowntime)
		assert.True(t, snap.LastDowntime.Equal(now.Add(-time.Minute)))

		latest, err := s.Latest(ctx, name)
		require.NoError(t, err)
		assert.True(t, latest.CheckedAt.Equal(now.Add(-time.Minute)))
		assert.False(t, latest.Success)
		assert.Nil(t, latest.LatencyMs)
		assert.Nil(t, latest.StatusCode)
		assert.Equal(t, domain.KindHTTP, latest.Kind)
		assert.Equal(t, "timeout: context deadline exceeded", latest.Error)
		require.NotNil(t, latest.TLS)
		assert.Equal(t, "TLS 1.3", latest.TLS.Version)
		assert.Equal(t, "nginx", latest.Headers["Server"])
		assert.Equal(t, 2, latest.RedirectCount)
		assert.Equal(t, 3, latest.Attempts)
	})

	t.Run("prune_compact", func(t *testing.T) {
		name := "old"
		require.NoError(t, s.Append(ctx, domain.CheckResult{TargetName: name, Kind: domain.KindTCP, CheckedAt: now.Add(-48 * time.Hour), Success: true}))
		require.NoError(t, s.Append(ctx, domain.CheckResult{TargetName: name, Kind: domain.KindTCP, CheckedAt: now.Add(-time.Minute), Success: true}))

		n, err := s.Prune(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		snap, err := s.Query(ctx, name, 72*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Count)

		require.NoError(t, s.Compact(ctx))
		latest, err := s.Latest(ctx, name)
		require.NoError(t, err)
		assert.True(t, latest.CheckedAt.Equal(now.Add(-time.Minute)))
	})

	t.Run("concurrent_readers_and_writers", func(t *testing.T) {
		name := "busy"
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(2)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					err := s.Append(ctx, domain.CheckResult{
						TargetName: name, Kind: domain.KindTCP, Success: true,
						CheckedAt: now.Add(-time.Duration(w*100+i) * time.Millisecond),
						LatencyMs: domain.Int64(int64(i)),
					})
					assert.NoError(t, err)
				}
			}(w)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					_, err := s.Query(ctx, name, time.Hour)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		snap, err := s.Query(ctx, name, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 100, snap.Count)
		assert.Equal(t, 100.0, snap.UptimePercent)
	})
}
