package domain

import "time"

// TLSInfo describes the negotiated TLS session and the leaf certificate.
type TLSInfo struct {
	Version  string    `json:"version"`
	Issuer   string    `json:"issuer"`
	Subject  string    `json:"subject"`
	NotAfter time.Time `json:"not_after"`
}

// CheckResult is the outcome of one probe. It is a value: once built by an
// executor nobody mutates it.
type CheckResult struct {
	TargetName string    `json:"target_name"`
	Kind       Kind      `json:"kind"`
	CheckedAt  time.Time `json:"checked_at"`
	Success    bool      `json:"success"`
	LatencyMs  *int64    `json:"latency_ms"`  // nil when no measurement was possible
	StatusCode *int      `json:"status_code"` // HTTP only
	Error      string    `json:"error,omitempty"`

	TTFBMs          *int64            `json:"ttfb_ms,omitempty"`
	RedirectCount   int               `json:"redirect_count,omitempty"`
	FinalURL        string            `json:"final_url,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	TLS             *TLSInfo          `json:"tls,omitempty"`
	ResolvedAddress string            `json:"resolved_address,omitempty"`
	Attempts        int               `json:"attempts,omitempty"`
}

// Latency returns the measured latency and whether one exists.
func (r CheckResult) Latency() (int64, bool) {
	if r.LatencyMs == nil {
		return 0, false
	}
	return *r.LatencyMs, true
}

func Int64(v int64) *int64 { return &v }

func Int(v int) *int { return &v }

// Millis converts a duration to whole milliseconds.
func Millis(d time.Duration) *int64 {
	return Int64(d.Milliseconds())
}
