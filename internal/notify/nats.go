package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/domain"
)

// NATS publishes events as JSON on a subject. The event type is appended to
// the subject, e.g. "health.events.down".
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("healthagent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats_disconnected", zap.String("url", url), zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats_reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

func (n *NATS) Deliver(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(newPayload(ev))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg := nats.NewMsg(n.subject + "." + string(ev.Type))
	msg.Header.Set("Nats-Msg-Id", ev.ID)
	msg.Data = data
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
