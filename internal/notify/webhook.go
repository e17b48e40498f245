package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Webhook POSTs the event as JSON to an arbitrary endpoint.
type Webhook struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func NewWebhook(url string, headers map[string]string) *Webhook {
	return &Webhook{
		URL:     url,
		Headers: headers,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Deliver(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(newPayload(ev))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "healthagent")
	req.Header.Set("X-Event-ID", ev.ID)
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	return doPost(w.Client, req)
}

func doPost(c *http.Client, req *http.Request) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %d", ErrNon2xx, resp.StatusCode)
	}
	return nil
}
