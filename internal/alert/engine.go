// Package alert turns probe results into state-change events and routes them
// to notification sinks.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/config"
	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/notify"
)

// Subscription binds a configured webhook to the sink that delivers for it.
type Subscription struct {
	Hook config.WebhookConfig
	Sink notify.Sink
}

// Delivery is one event bound for one sink.
type Delivery struct {
	Event domain.Event
	Hook  string
	Sink  notify.Sink
}

// Enqueuer accepts deliveries without blocking.
type Enqueuer interface {
	Enqueue(d Delivery) bool
}

// TargetState is the alert-side view of one target.
type TargetState struct {
	LastKnownUp           *bool                `json:"last_known_up"`
	ConsecutiveSlowChecks int                  `json:"consecutive_slow_checks"`
	LatencyAlertActive    bool                 `json:"latency_alert_active"`
	DownSince             *time.Time           `json:"down_since,omitempty"`
	LastAlertSentAt       map[string]time.Time `json:"last_alert_sent_at,omitempty"` // key: webhook|event
}

type targetState struct {
	mu     sync.Mutex
	target domain.Target
	TargetState
}

// Engine owns the state of every target. Results for one target are
// evaluated one at a time; different targets proceed in parallel.
type Engine struct {
	log  *zap.Logger
	subs []Subscription
	out  Enqueuer
	now  func() time.Time

	// built once in NewEngine and never resized, so lookups need no lock
	states map[string]*targetState
}

func NewEngine(targets []domain.Target, subs []Subscription, out Enqueuer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:    log,
		subs:   subs,
		out:    out,
		now:    time.Now,
		states: make(map[string]*targetState, len(targets)),
	}
	for _, t := range targets {
		e.states[t.Name] = &targetState{
			target:      t,
			TargetState: TargetState{LastAlertSentAt: make(map[string]time.Time)},
		}
	}
	return e
}

// Observe feeds one fresh result through the state machine and returns the
// events it fired. Deliveries are queued, never sent inline.
func (e *Engine) Observe(ctx context.Context, r domain.CheckResult) []domain.Event {
	st, ok := e.states[r.TargetName]
	if !ok {
		e.log.Warn("alert_unknown_target", zap.String("target", r.TargetName))
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.now().UTC()
	var fired []domain.Event

	transitioned := false
	switch {
	case st.LastKnownUp == nil:
		up := r.Success
		st.LastKnownUp = &up
		if !up {
			st.DownSince = &now
		}
	case *st.LastKnownUp && !r.Success:
		transitioned = true
		*st.LastKnownUp = false
		st.DownSince = &now
		fired = append(fired, e.newEvent(st, domain.EventDown, r, now, false))
	case !*st.LastKnownUp && r.Success:
		transitioned = true
		*st.LastKnownUp = true
		st.DownSince = nil
		fired = append(fired, e.newEvent(st, domain.EventUp, r, now, false))
	}

	if st.target.WatchesLatency() {
		if ev, ok := e.evalLatency(st, r, now); ok {
			fired = append(fired, ev)
		}
	}

	for _, ev := range fired {
		e.route(st, ev, now)
	}

	if !transitioned && !r.Success && st.LastKnownUp != nil && !*st.LastKnownUp {
		fired = append(fired, e.remind(st, r, now)...)
	}

	for _, ev := range fired {
		e.log.Info("alert_fired",
			zap.String("event_id", ev.ID),
			zap.String("target", ev.Target.Name),
			zap.String("event", string(ev.Type)),
			zap.Bool("reminder", ev.Reminder),
		)
	}
	return fired
}

// evalLatency updates the slow-check streak. A result without a latency
// measurement leaves the streak untouched.
func (e *Engine) evalLatency(st *targetState, r domain.CheckResult, now time.Time) (domain.Event, bool) {
	lat, ok := r.Latency()
	if !ok {
		return domain.Event{}, false
	}
	if lat > st.target.LatencyThresholdMs {
		st.ConsecutiveSlowChecks++
		need := st.target.LatencyConsecutiveChecks
		if need < 1 {
			need = 1
		}
		if st.ConsecutiveSlowChecks >= need && !st.LatencyAlertActive {
			st.LatencyAlertActive = true
			return e.newEvent(st, domain.EventLatencyHigh, r, now, false), true
		}
		return domain.Event{}, false
	}

	st.ConsecutiveSlowChecks = 0
	if st.LatencyAlertActive {
		st.LatencyAlertActive = false
		return e.newEvent(st, domain.EventLatencyNormal, r, now, false), true
	}
	return domain.Event{}, false
}

func (e *Engine) route(st *targetState, ev domain.Event, now time.Time) {
	for _, sub := range e.subs {
		if !sub.Hook.Watches(st.target.Name) || !sub.Hook.Fires(ev.Type) {
			continue
		}
		e.send(st, sub, ev, now)
	}
}

// remind re-sends down to webhooks with realert_after once that long has
// passed since their last down delivery, or since the outage began.
func (e *Engine) remind(st *targetState, r domain.CheckResult, now time.Time) []domain.Event {
	var out []domain.Event
	for _, sub := range e.subs {
		if sub.Hook.RealertAfter <= 0 || !sub.Hook.Watches(st.target.Name) || !sub.Hook.Fires(domain.EventDown) {
			continue
		}
		since := time.Time{}
		if st.DownSince != nil {
			since = *st.DownSince
		}
		if last, ok := st.LastAlertSentAt[sentKey(sub.Hook.Name, domain.EventDown)]; ok && last.After(since) {
			since = last
		}
		if now.Sub(since) < sub.Hook.RealertAfter {
			continue
		}
		ev := e.newEvent(st, domain.EventDown, r, now, true)
		if e.send(st, sub, ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// send applies the cooldown for (target, webhook, event type) and queues the
// delivery. The cooldown clock starts when the delivery is queued.
func (e *Engine) send(st *targetState, sub Subscription, ev domain.Event, now time.Time) bool {
	key := sentKey(sub.Hook.Name, ev.Type)
	if cd := sub.Hook.Cooldown(); cd > 0 {
		if last, ok := st.LastAlertSentAt[key]; ok && now.Sub(last) < cd {
			e.log.Debug("alert_suppressed_cooldown",
				zap.String("target", st.target.Name),
				zap.String("webhook", sub.Hook.Name),
				zap.String("event", string(ev.Type)),
				zap.Duration("remaining", cd-now.Sub(last)),
			)
			return false
		}
	}
	st.LastAlertSentAt[key] = now
	return e.out.Enqueue(Delivery{Event: ev, Hook: sub.Hook.Name, Sink: sub.Sink})
}

func (e *Engine) newEvent(st *targetState, typ domain.EventType, r domain.CheckResult, now time.Time, reminder bool) domain.Event {
	return domain.Event{
		ID:       uuid.NewString(),
		Type:     typ,
		Target:   st.target,
		Result:   r,
		At:       now,
		Reminder: reminder,
	}
}

func sentKey(hook string, typ domain.EventType) string {
	return hook + "|" + string(typ)
}

// State returns a copy of the named target's state.
func (e *Engine) State(name string) (TargetState, bool) {
	st, ok := e.states[name]
	if !ok {
		return TargetState{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	cp := st.TargetState
	if st.LastKnownUp != nil {
		up := *st.LastKnownUp
		cp.LastKnownUp = &up
	}
	if st.DownSince != nil {
		ds := *st.DownSince
		cp.DownSince = &ds
	}
	cp.LastAlertSentAt = make(map[string]time.Time, len(st.LastAlertSentAt))
	for k, v := range st.LastAlertSentAt {
		cp.LastAlertSentAt[k] = v
	}
	return cp, true
}
