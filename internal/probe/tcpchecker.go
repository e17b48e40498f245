package probe

import (
	"context"
	"net"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

// TCPChecker opens a connection and closes it again. No data is exchanged.
type TCPChecker struct {
	Dialer *net.Dialer
}

func NewTCPChecker() *TCPChecker {
	return &TCPChecker{Dialer: &net.Dialer{}}
}

func (c *TCPChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	res := newResult(t)
	ctx, cancel := withTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := c.Dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return fail(res, classify(err), err.Error())
	}
	res.LatencyMs = domain.Millis(time.Since(start))
	res.ResolvedAddress = conn.RemoteAddr().String()
	_ = conn.Close()

	res.Success = true
	return res
}
