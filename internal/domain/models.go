package domain

import "time"

// Kind selects the probe executor for a target.
type Kind string

const (
	KindHTTP Kind = "http"
	KindTCP  Kind = "tcp"
	KindDNS  Kind = "dns"
)

// Valid reports whether k is one of the supported probe kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHTTP, KindTCP, KindDNS:
		return true
	}
	return false
}

// MaxNameLen bounds target names so they fit dashboards and alert titles.
const MaxNameLen = 10

// ContentValidation is an optional body check for HTTP targets.
// Exactly one of Keyword or JSONPath is set.
type ContentValidation struct {
	Keyword      string `json:"keyword,omitempty"`
	JSONPath     string `json:"json_path,omitempty"`
	JSONExpected string `json:"json_expected,omitempty"`
}

// Target is a configured endpoint. It is built once at config load and never mutated.
type Target struct {
	Name    string        `json:"name"`
	Kind    Kind          `json:"kind"`
	Address string        `json:"address"`
	Timeout time.Duration `json:"timeout"`

	// HTTP only
	UserAgent      string             `json:"user_agent,omitempty"`
	ExpectedStatus StatusRanges       `json:"expected_status,omitempty"`
	Content        *ContentValidation `json:"content,omitempty"`

	// DNS only
	RecordType      string `json:"record_type,omitempty"`
	ExpectedAddress string `json:"expected_address,omitempty"`
	Resolver        string `json:"resolver,omitempty"`

	LatencyThresholdMs       int64 `json:"latency_threshold_ms,omitempty"`
	LatencyConsecutiveChecks int   `json:"latency_consecutive_checks,omitempty"`

	Retries      int           `json:"retries,omitempty"`
	RetryBackoff time.Duration `json:"retry_backoff,omitempty"`
}

// WatchesLatency is true when a latency threshold is configured.
func (t Target) WatchesLatency() bool {
	return t.LatencyThresholdMs > 0
}

// SuccessCodes returns the configured status ranges or the 200-399 default.
func (t Target) SuccessCodes() StatusRanges {
	if len(t.ExpectedStatus) == 0 {
		return DefaultSuccessCodes
	}
	return t.ExpectedStatus
}
