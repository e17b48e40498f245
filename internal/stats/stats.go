// Package stats derives rolling health statistics from probe history.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Compute builds a snapshot from the results of one target that fall inside
// [now-window, now]. Results must be ordered oldest first.
func Compute(name string, window time.Duration, now time.Time, results []domain.CheckResult) domain.Snapshot {
	if window <= 0 {
		window = domain.DefaultWindow
	}
	snap := domain.Snapshot{
		TargetName: name,
		Window:     window,
		From:       now.Add(-window),
		Generated:  now,
		Count:      len(results),
	}

	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Success {
			snap.SuccessCount++
		}
		if v, ok := r.Latency(); ok {
			latencies = append(latencies, float64(v))
		}
	}
	snap.UptimePercent = Uptime(snap.SuccessCount, snap.Count)
	snap.ConsecutiveFailures = ConsecutiveFailures(results)
	snap.LastDowntime = LastDowntime(results)

	if len(latencies) == 0 {
		return snap
	}
	sort.Float64s(latencies)

	var sum float64
	for _, v := range latencies {
		sum += v
	}
	snap.MinLatencyMs = ptr(latencies[0])
	snap.MaxLatencyMs = ptr(latencies[len(latencies)-1])
	snap.AvgLatencyMs = ptr(sum / float64(len(latencies)))
	snap.P50LatencyMs = ptr(Percentile(latencies, 50))
	snap.P95LatencyMs = ptr(Percentile(latencies, 95))
	snap.P99LatencyMs = ptr(Percentile(latencies, 99))
	snap.StdDevMs = ptr(StdDev(latencies))
	return snap
}

// Uptime is success/count as a percentage, 0 for an empty window.
func Uptime(success, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(success) / float64(count) * 100
}

// Percentile uses the nearest-rank method over an ascending slice:
// rank = ceil(p/100 * n) clamped to [1, n]. It returns 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// StdDev is the population standard deviation, computed in two passes.
func StdDev(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n))
}

// ConsecutiveFailures counts failed results from the newest backward until
// the first success.
func ConsecutiveFailures(results []domain.CheckResult) int {
	n := 0
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Success {
			break
		}
		n++
	}
	return n
}

// LastDowntime is the timestamp of the newest failed result, nil if none.
func LastDowntime(results []domain.CheckResult) *time.Time {
	for i := len(results) - 1; i >= 0; i-- {
		if !results[i].Success {
			at := results[i].CheckedAt
			return &at
		}
	}
	return nil
}

func ptr(v float64) *float64 { return &v }
