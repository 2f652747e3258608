package slack

import (
	"context"
	"fmt"
)

// Provider posts operator alerts to a channel.
type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

// NoOpProvider is used when no webhook is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(context.Context, string, string) error {
	return nil
}

// UsageSpike is the alert posted when a user's daily usage jumps past the
// anomaly threshold.
type UsageSpike struct {
	Tenant  string
	User    string
	Metric  string
	Date    string
	Latest  string
	Average string
}

// Text renders the spike in Slack mrkdwn.
func (s UsageSpike) Text() string {
	return fmt.Sprintf(":chart_with_upwards_trend: *Usage spike* for *%s* (%s)\n`%s` on %s: %s vs trailing average %s",
		s.User, s.Tenant, s.Metric, s.Date, s.Latest, s.Average)
}
