package repo

import (
	"encoding/json"

	"github.com/hamed0406/healthagent/internal/domain"
)

// meta is the protocol-specific part of a result, stored as one JSON column
// by the SQL adapters.
type meta struct {
	TTFBMs          *int64            `json:"ttfb_ms,omitempty"`
	RedirectCount   int               `json:"redirect_count,omitempty"`
	FinalURL        string            `json:"final_url,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	TLS             *domain.TLSInfo   `json:"tls,omitempty"`
	ResolvedAddress string            `json:"resolved_address,omitempty"`
	Attempts        int               `json:"attempts,omitempty"`
}

func EncodeMeta(r domain.CheckResult) ([]byte, error) {
	return json.Marshal(meta{
		TTFBMs:          r.TTFBMs,
		RedirectCount:   r.RedirectCount,
		FinalURL:        r.FinalURL,
		Headers:         r.Headers,
		TLS:             r.TLS,
		ResolvedAddress: r.ResolvedAddress,
		Attempts:        r.Attempts,
	})
}

func DecodeMeta(b []byte, r *domain.CheckResult) error {
	if len(b) == 0 {
		return nil
	}
	var m meta
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.TTFBMs = m.TTFBMs
	r.RedirectCount = m.RedirectCount
	r.FinalURL = m.FinalURL
	r.Headers = m.Headers
	r.TLS = m.TLS
	r.ResolvedAddress = m.ResolvedAddress
	r.Attempts = m.Attempts
	return nil
}
