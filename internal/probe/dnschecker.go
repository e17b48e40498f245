package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/hamed0406/healthagent/internal/domain"
)

const fallbackResolver = "1.1.1.1:53"

// DNSChecker resolves A or AAAA records against a single resolver.
type DNSChecker struct {
	Resolver string // host:port used when the target sets none
	Net      string // "udp" or "tcp"
}

func NewDNSChecker(resolver string) *DNSChecker {
	if resolver == "" {
		resolver = SystemResolver()
	}
	return &DNSChecker{Resolver: resolver, Net: "udp"}
}

// SystemResolver returns the first nameserver from /etc/resolv.conf, or a
// public resolver when the file is missing.
func SystemResolver() string {
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cc.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

func (d *DNSChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	res := newResult(t)
	ctx, cancel := withTimeout(ctx, t.Timeout)
	defer cancel()

	server := withPort(firstNonEmpty(t.Resolver, d.Resolver, fallbackResolver))
	qtype := dns.TypeA
	if strings.EqualFold(t.RecordType, "AAAA") {
		qtype = dns.TypeAAAA
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(t.Address), qtype)
	client := &dns.Client{Net: d.Net, Timeout: t.Timeout}

	start := time.Now()
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		cat := classify(err)
		if cat == CatRequest {
			cat = CatDNS
		}
		return fail(res, cat, err.Error())
	}
	res.LatencyMs = domain.Millis(time.Since(start))

	if resp.Rcode != dns.RcodeSuccess {
		return fail(res, CatResolution, fmt.Sprintf("%s %s: %s", dns.TypeToString[qtype], t.Address, dns.RcodeToString[resp.Rcode]))
	}
	ips := answerIPs(resp.Answer)
	if len(ips) == 0 {
		return fail(res, CatResolution, fmt.Sprintf("no %s records for %s", dns.TypeToString[qtype], t.Address))
	}
	res.ResolvedAddress = ips[0].String()

	if t.ExpectedAddress != "" {
		want := net.ParseIP(t.ExpectedAddress)
		for _, ip := range ips {
			if ip.Equal(want) {
				res.ResolvedAddress = ip.String()
				res.Success = true
				return res
			}
		}
		return fail(res, CatAddressMismatch, fmt.Sprintf("resolved %s, want %s", joinIPs(ips), t.ExpectedAddress))
	}

	res.Success = true
	return res
}

func answerIPs(rrs []dns.RR) []net.IP {
	var ips []net.IP
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		}
	}
	return ips
}

func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ",")
}

func withPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "53")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
