package opsnotify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts failure alerts to a single Slack channel.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier creates a SlackNotifier. If botToken or channel is
// empty, IsEnabled reports false and PostFailureAlert becomes a no-op.
func NewSlackNotifier(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

// Name implements Notifier.
func (n *SlackNotifier) Name() string { return "slack" }

// IsEnabled reports whether this notifier has a usable client and channel.
func (n *SlackNotifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostFailureAlert implements Notifier.
func (n *SlackNotifier) PostFailureAlert(ctx context.Context, alert FailureAlert) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack ops notifier disabled, skipping alert", "tenant", alert.TenantSlug, "item_id", alert.ItemID)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(formatText(alert), false))
	if err != nil {
		return fmt.Errorf("posting failure alert to slack: %w", err)
	}
	return nil
}
