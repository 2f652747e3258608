package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostMessage(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhook(srv.URL, srv.Client())
	require.NoError(t, p.PostMessage(context.Background(), "#billing-alerts", "usage spike"))
	assert.Equal(t, webhookPayload{Channel: "#billing-alerts", Text: "usage spike"}, got)
}

func TestWebhookPostMessageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, srv.Client()).PostMessage(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestUsageSpikeText(t *testing.T) {
	text := UsageSpike{Tenant: "Acme", User: "Alice", Metric: "calls", Date: "2024-06-15", Latest: "900.00", Average: "100.00"}.Text()
	assert.Contains(t, text, "*Alice* (Acme)")
	assert.Contains(t, text, "`calls` on 2024-06-15: 900.00 vs trailing average 100.00")
}
