package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/healthagent/internal/domain"
)

func TestTelegram_SendsMessage(t *testing.T) {
	const token = "123456:test-token"
	type call struct {
		path string
		body string
	}
	got := make(chan call, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- call{path: r.URL.Path, body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	}))
	defer ts.Close()

	tg, err := NewTelegram(token, 42, ts.URL)
	require.NoError(t, err)
	require.NoError(t, tg.Deliver(context.Background(), sampleEvent(domain.EventDown)))

	c := <-got
	assert.Equal(t, "/bot"+token+"/sendMessage", c.path)
	assert.Contains(t, c.body, "Target DOWN: web")
	assert.Contains(t, c.body, "42")
}

func TestTelegram_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer ts.Close()

	tg, err := NewTelegram("1:x", 7, ts.URL)
	require.NoError(t, err)
	assert.Error(t, tg.Deliver(context.Background(), sampleEvent(domain.EventUp)))
}
