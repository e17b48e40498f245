package domain

import "time"

type EventType string

const (
	EventDown          EventType = "down"
	EventUp            EventType = "up"
	EventLatencyHigh   EventType = "latency_high"
	EventLatencyNormal EventType = "latency_normal"
)

// Event is a state change raised by the alert engine for one target.
type Event struct {
	ID       string      `json:"id"`
	Type     EventType   `json:"event"`
	Target   Target      `json:"target"`
	Result   CheckResult `json:"result"`
	At       time.Time   `json:"at"`
	Reminder bool        `json:"reminder,omitempty"` // repeated down while still down
}
