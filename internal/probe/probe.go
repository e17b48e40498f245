package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Checker performs one probe of a target. Failures are reported in the
// returned result, never as an error or panic.
type Checker interface {
	Check(ctx context.Context, t domain.Target) domain.CheckResult
}

// Category classifies why a probe failed. It prefixes CheckResult.Error.
type Category string

const (
	CatTimeout          Category = "timeout"
	CatDNS              Category = "dns_error"
	CatRefused          Category = "connection_refused"
	CatTLS              Category = "tls_error"
	CatTooManyRedirects Category = "too_many_redirects"
	CatStatus           Category = "unexpected_status"
	CatContent          Category = "content_mismatch"
	CatResolution       Category = "resolution_failed"
	CatAddressMismatch  Category = "address_mismatch"
	CatRequest          Category = "request_error"
	CatCanceled         Category = "canceled"
)

var errTooManyRedirects = errors.New("stopped after too many redirects")

func newResult(t domain.Target) domain.CheckResult {
	return domain.CheckResult{
		TargetName: t.Name,
		Kind:       t.Kind,
		CheckedAt:  time.Now().UTC(),
	}
}

func fail(r domain.CheckResult, cat Category, detail string) domain.CheckResult {
	r.Success = false
	r.Error = fmt.Sprintf("%s: %s", cat, detail)
	return r
}

// ErrorCategory extracts the category prefix from a CheckResult error message.
func ErrorCategory(msg string) Category {
	cat, _, ok := strings.Cut(msg, ":")
	if !ok {
		return ""
	}
	return Category(cat)
}

func classify(err error) Category {
	var (
		dnsErr   *net.DNSError
		netErr   net.Error
		verifErr *tls.CertificateVerificationError
		unkErr   x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		invErr   x509.CertificateInvalidError
		recErr   tls.RecordHeaderError
		alertErr tls.AlertError
	)
	switch {
	case errors.Is(err, errTooManyRedirects):
		return CatTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded):
		return CatTimeout
	case errors.Is(err, context.Canceled):
		return CatCanceled
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return CatTimeout
		}
		return CatDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return CatRefused
	case errors.As(err, &verifErr), errors.As(err, &unkErr), errors.As(err, &hostErr),
		errors.As(err, &invErr), errors.As(err, &recErr), errors.As(err, &alertErr):
		return CatTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return CatTimeout
	}
	return CatRequest
}

// withTimeout bounds ctx by the target timeout when one is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
