package domain

import "time"

// DefaultWindow is the trailing window used when a caller does not pass one.
const DefaultWindow = 24 * time.Hour

// Snapshot holds rolling statistics for one target over a trailing window.
// Latency fields are nil when the window holds no latency samples.
type Snapshot struct {
	TargetName string        `json:"target_name"`
	Window     time.Duration `json:"window"`
	From       time.Time     `json:"from"`
	Generated  time.Time     `json:"generated_at"`

	Count         int     `json:"count"`
	SuccessCount  int     `json:"success_count"`
	UptimePercent float64 `json:"uptime_percent"`

	MinLatencyMs *float64 `json:"min_latency_ms"`
	AvgLatencyMs *float64 `json:"avg_latency_ms"`
	MaxLatencyMs *float64 `json:"max_latency_ms"`
	P50LatencyMs *float64 `json:"p50_latency_ms"`
	P95LatencyMs *float64 `json:"p95_latency_ms"`
	P99LatencyMs *float64 `json:"p99_latency_ms"`
	StdDevMs     *float64 `json:"stddev_latency_ms"`

	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastDowntime        *time.Time `json:"last_downtime"`
}
