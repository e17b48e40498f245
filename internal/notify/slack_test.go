package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

func sampleEvent(typ domain.EventType) domain.Event {
	return domain.Event{
		ID:   "evt-1",
		Type: typ,
		At:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Target: domain.Target{
			Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", LatencyThresholdMs: 1000,
		},
		Result: domain.CheckResult{
			TargetName: "web",
			CheckedAt:  time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
			StatusCode: domain.Int(503),
			LatencyMs:  domain.Int64(1200),
			Error:      "unexpected_status: got 503, want 200-399",
		},
	}
}

func TestSlack_OK(t *testing.T) {
	got := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got <- payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if err := s.Deliver(context.Background(), sampleEvent(domain.EventDown)); err != nil {
		t.Fatalf("send err: %v", err)
	}
	text := <-got
	if !strings.HasPrefix(text, "*🔴 Target DOWN: web*") {
		t.Fatalf("payload not as expected: %q", text)
	}
	if !strings.Contains(text, "HTTP: 503") || !strings.Contains(text, "Latency: 1200 ms") {
		t.Fatalf("body missing fields: %q", text)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	err := s.Deliver(context.Background(), sampleEvent(domain.EventUp))
	if !errors.Is(err, ErrNon2xx) {
		t.Fatalf("expected ErrNon2xx, got %v", err)
	}
}

func TestFormat_Titles(t *testing.T) {
	cases := map[domain.EventType]string{
		domain.EventDown:          "🔴 Target DOWN: web",
		domain.EventUp:            "🟢 Target RECOVERED: web",
		domain.EventLatencyHigh:   "🟠 Latency HIGH: web",
		domain.EventLatencyNormal: "🔵 Latency NORMAL: web",
	}
	for typ, want := range cases {
		title, _ := Format(sampleEvent(typ))
		if title != want {
			t.Fatalf("%s: got %q want %q", typ, title, want)
		}
	}

	ev := sampleEvent(domain.EventDown)
	ev.Reminder = true
	if title, _ := Format(ev); !strings.Contains(title, "still DOWN") {
		t.Fatalf("reminder title: %q", title)
	}

	ev.Result.StatusCode = nil
	ev.Result.LatencyMs = nil
	_, text := Format(ev)
	if !strings.Contains(text, "HTTP: n/a") || !strings.Contains(text, "Latency: n/a") {
		t.Fatalf("missing n/a placeholders: %q", text)
	}
}
