package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Validate reports every problem at once; the result wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Interval <= 0 {
		add("interval must be > 0")
	}
	if c.Retention <= 0 {
		add("retention must be > 0")
	}
	if c.Stagger < 0 {
		add("stagger must be >= 0")
	}
	if c.Workers < 1 {
		add("workers must be >= 1")
	}
	if c.CompactionSchedule != "" {
		if _, err := cron.ParseStandard(c.CompactionSchedule); err != nil {
			add("compaction_schedule %q: %v", c.CompactionSchedule, err)
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			add("store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			add("store.dsn is required for postgres")
		}
	default:
		add("store.driver %q: want memory, sqlite or postgres", c.Store.Driver)
	}

	if c.Delivery.Workers < 1 {
		add("delivery.workers must be >= 1")
	}
	if c.Delivery.Queue < 1 {
		add("delivery.queue must be >= 1")
	}
	if c.Delivery.Attempts < 1 {
		add("delivery.attempts must be >= 1")
	}

	if len(c.Targets) == 0 {
		add("at least one target is required")
	}
	names := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		label := fmt.Sprintf("targets[%d]", i)
		if t.Name != "" {
			label = fmt.Sprintf("target %q", t.Name)
		}
		switch {
		case t.Name == "":
			add("%s: name is required", label)
		case len(t.Name) > domain.MaxNameLen:
			add("%s: name longer than %d characters", label, domain.MaxNameLen)
		case names[t.Name]:
			add("%s: duplicate name", label)
		}
		names[t.Name] = true

		if err := validateTarget(t); err != nil {
			for _, e := range multierr.Errors(err) {
				add("%s: %v", label, e)
			}
		}
	}

	hooks := make(map[string]bool, len(c.Webhooks))
	for i, w := range c.Webhooks {
		label := fmt.Sprintf("webhooks[%d]", i)
		if w.Name != "" {
			label = fmt.Sprintf("webhook %q", w.Name)
		}
		if w.Name == "" {
			add("%s: name is required", label)
		} else if hooks[w.Name] {
			add("%s: duplicate name", label)
		}
		hooks[w.Name] = true

		if w.CooldownSeconds < 0 {
			add("%s: cooldown_seconds must be >= 0", label)
		}
		if w.RealertAfter < 0 {
			add("%s: realert_after must be >= 0", label)
		}
		for _, tn := range w.Targets {
			if !names[tn] {
				add("%s: unknown target %q", label, tn)
			}
		}
		switch w.Kind {
		case "webhook", "slack":
			if !isHTTPURL(w.URL) {
				add("%s: url must be an http(s) URL", label)
			}
		case "telegram":
			if w.Telegram.Token == "" || w.Telegram.ChatID == 0 {
				add("%s: telegram.token and telegram.chat_id are required", label)
			}
		case "nats":
			if w.NATS.URL == "" || w.NATS.Subject == "" {
				add("%s: nats.url and nats.subject are required", label)
			}
		default:
			add("%s: unknown kind %q", label, w.Kind)
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, errs)
	}
	return nil
}

func validateTarget(t TargetConfig) error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}
	if t.Timeout <= 0 {
		add("timeout must be > 0")
	}
	if t.LatencyThresholdMs < 0 {
		add("latency_threshold_ms must be >= 0")
	}
	if t.Retries < 0 {
		add("retries must be >= 0")
	}

	switch domain.Kind(t.Kind) {
	case domain.KindHTTP:
		if !isHTTPURL(t.Address) {
			add("address %q must be an http(s) URL", t.Address)
		}
		if _, err := domain.ParseStatusRanges(t.ExpectedStatus); err != nil {
			add("expected_status: %v", err)
		}
		if t.Content.Keyword != "" && t.Content.JSONPath != "" {
			add("content: keyword and json_path are mutually exclusive")
		}
	case domain.KindTCP:
		host, port, err := net.SplitHostPort(t.Address)
		if err != nil || host == "" || port == "" {
			add("address %q must be host:port", t.Address)
		}
	case domain.KindDNS:
		if t.Address == "" || strings.ContainsAny(t.Address, ":/ ") {
			add("address %q must be a bare hostname", t.Address)
		}
		if t.RecordType != "A" && t.RecordType != "AAAA" {
			add("record_type %q: want A or AAAA", t.RecordType)
		}
		if t.ExpectedAddress != "" && net.ParseIP(t.ExpectedAddress) == nil {
			add("expected_address %q is not an IP", t.ExpectedAddress)
		}
	default:
		add("unknown kind %q", t.Kind)
	}
	return errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DomainTargets converts validated target entries into domain values.
func (c *Config) DomainTargets() []domain.Target {
	out := make([]domain.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		ranges, _ := domain.ParseStatusRanges(t.ExpectedStatus)
		dt := domain.Target{
			Name:                     t.Name,
			Kind:                     domain.Kind(t.Kind),
			Address:                  t.Address,
			Timeout:                  t.Timeout,
			UserAgent:                t.UserAgent,
			ExpectedStatus:           ranges,
			RecordType:               t.RecordType,
			ExpectedAddress:          t.ExpectedAddress,
			Resolver:                 t.Resolver,
			LatencyThresholdMs:       t.LatencyThresholdMs,
			LatencyConsecutiveChecks: t.LatencyConsecutiveChecks,
			Retries:                  t.Retries,
			RetryBackoff:             t.RetryBackoff,
		}
		if t.Content.Keyword != "" || t.Content.JSONPath != "" {
			dt.Content = &domain.ContentValidation{
				Keyword:      t.Content.Keyword,
				JSONPath:     t.Content.JSONPath,
				JSONExpected: t.Content.JSONExpected,
			}
		}
		out = append(out, dt)
	}
	return out
}

// Fires reports whether the webhook subscribes to the event type.
func (w WebhookConfig) Fires(t domain.EventType) bool {
	switch t {
	case domain.EventDown:
		return w.NotifyFailure()
	case domain.EventUp:
		return w.NotifyRecovery()
	case domain.EventLatencyHigh, domain.EventLatencyNormal:
		return w.NotifyLatency()
	}
	return false
}
