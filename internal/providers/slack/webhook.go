package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/meterbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookProvider{url: url, client: client}
}

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Slack.WebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Slack.WebhookURL, nil)
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	payload, err := json.Marshal(webhookPayload{Channel: channelID, Text: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
