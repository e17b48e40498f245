package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/config"
	"github.com/hamed0406/healthagent/internal/domain"
)

func TestWebhook_PostsJSON(t *testing.T) {
	type captured struct {
		header http.Header
		body   payload
	}
	got := make(chan captured, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- captured{header: r.Header.Clone(), body: p}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	wh := NewWebhook(ts.URL, map[string]string{"Authorization": "Bearer s3cret"})
	require.NoError(t, wh.Deliver(context.Background(), sampleEvent(domain.EventDown)))

	c := <-got
	assert.Equal(t, "application/json", c.header.Get("Content-Type"))
	assert.Equal(t, "evt-1", c.header.Get("X-Event-ID"))
	assert.Equal(t, "Bearer s3cret", c.header.Get("Authorization"))
	assert.Equal(t, domain.EventDown, c.body.Event)
	assert.Equal(t, "web", c.body.Target)
	assert.Equal(t, "https://example.com", c.body.Address)
	require.NotNil(t, c.body.StatusCode)
	assert.Equal(t, 503, *c.body.StatusCode)
}

func TestWebhook_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhook(ts.URL, nil).Deliver(context.Background(), sampleEvent(domain.EventUp))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNon2xx))
	assert.Contains(t, err.Error(), "502")
}

func TestNew_BuildsSinkPerKind(t *testing.T) {
	log := zap.NewNop()

	s, err := New(config.WebhookConfig{Name: "a", Kind: "webhook", URL: "http://x"}, log)
	require.NoError(t, err)
	assert.IsType(t, &Webhook{}, s)

	s, err = New(config.WebhookConfig{Name: "b", Kind: "slack", URL: "http://x"}, log)
	require.NoError(t, err)
	assert.IsType(t, &Slack{}, s)

	s, err = New(config.WebhookConfig{Name: "c", Kind: "telegram", Telegram: config.TelegramConfig{Token: "1:abc", ChatID: 5}}, log)
	require.NoError(t, err)
	assert.IsType(t, &Telegram{}, s)

	_, err = New(config.WebhookConfig{Name: "d", Kind: "pager"}, log)
	assert.Error(t, err)
}
