package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/config"
	"github.com/hamed0406/healthagent/internal/domain"
)

// ErrNon2xx is returned by HTTP sinks when the endpoint answers outside 2xx.
var ErrNon2xx = errors.New("non-2xx response")

// Sink delivers one event to one destination. Timing, cooldown and retries
// are the caller's concern.
type Sink interface {
	Deliver(ctx context.Context, ev domain.Event) error
}

// New builds the sink described by a webhook entry.
func New(w config.WebhookConfig, log *zap.Logger) (Sink, error) {
	switch w.Kind {
	case "", "webhook":
		return NewWebhook(w.URL, w.Headers), nil
	case "slack":
		return NewSlack(w.URL), nil
	case "telegram":
		return NewTelegram(w.Telegram.Token, w.Telegram.ChatID, "")
	case "nats":
		return NewNATS(w.NATS.URL, w.NATS.Subject, log)
	}
	return nil, fmt.Errorf("webhook %q: unknown kind %q", w.Name, w.Kind)
}

// Format renders an event as a short title and a multi-line body for chat sinks.
func Format(ev domain.Event) (title, text string) {
	switch ev.Type {
	case domain.EventDown:
		title = "🔴 Target DOWN"
		if ev.Reminder {
			title = "🔴 Target still DOWN"
		}
	case domain.EventUp:
		title = "🟢 Target RECOVERED"
	case domain.EventLatencyHigh:
		title = "🟠 Latency HIGH"
	case domain.EventLatencyNormal:
		title = "🔵 Latency NORMAL"
	default:
		title = string(ev.Type)
	}
	title += ": " + ev.Target.Name

	r := ev.Result
	httpTxt := "n/a"
	if r.StatusCode != nil {
		httpTxt = fmt.Sprintf("%d", *r.StatusCode)
	}
	latencyTxt := "n/a"
	if r.LatencyMs != nil {
		latencyTxt = fmt.Sprintf("%d ms", *r.LatencyMs)
		if ev.Target.LatencyThresholdMs > 0 {
			latencyTxt += fmt.Sprintf(" (threshold %d ms)", ev.Target.LatencyThresholdMs)
		}
	}
	reason := r.Error
	if reason == "" {
		reason = "ok"
	}

	text = fmt.Sprintf(
		"Target: %s (%s)\nAddress: %s\nHTTP: %s\nLatency: %s\nReason: %s\nChecked: %s",
		ev.Target.Name, ev.Target.Kind, ev.Target.Address, httpTxt, latencyTxt, reason,
		r.CheckedAt.Format(time.RFC3339),
	)
	return title, text
}

// payload is the JSON body shared by the webhook and NATS sinks.
type payload struct {
	ID         string           `json:"id"`
	Event      domain.EventType `json:"event"`
	Reminder   bool             `json:"reminder,omitempty"`
	At         time.Time        `json:"at"`
	Target     string           `json:"target"`
	Kind       domain.Kind      `json:"kind"`
	Address    string           `json:"address"`
	Success    bool             `json:"success"`
	LatencyMs  *int64           `json:"latency_ms"`
	StatusCode *int             `json:"status_code"`
	Error      string           `json:"error,omitempty"`
	CheckedAt  time.Time        `json:"checked_at"`
}

func newPayload(ev domain.Event) payload {
	return payload{
		ID:         ev.ID,
		Event:      ev.Type,
		Reminder:   ev.Reminder,
		At:         ev.At,
		Target:     ev.Target.Name,
		Kind:       ev.Target.Kind,
		Address:    ev.Target.Address,
		Success:    ev.Result.Success,
		LatencyMs:  ev.Result.LatencyMs,
		StatusCode: ev.Result.StatusCode,
		Error:      ev.Result.Error,
		CheckedAt:  ev.Result.CheckedAt,
	}
}
