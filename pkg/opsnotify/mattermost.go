package opsnotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// mattermostPost mirrors the subset of the Mattermost REST API v4 post
// shape this notifier needs.
type mattermostPost struct {
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
}

// MattermostNotifier posts failure alerts to a Mattermost channel via the
// REST API, independent of the interactive command/dialog surface the
// full Mattermost integration owns elsewhere.
type MattermostNotifier struct {
	baseURL    string
	botToken   string
	channelID  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMattermostNotifier creates a MattermostNotifier.
func NewMattermostNotifier(baseURL, botToken, channelID string, logger *slog.Logger) *MattermostNotifier {
	return &MattermostNotifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   botToken,
		channelID:  channelID,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Name implements Notifier.
func (n *MattermostNotifier) Name() string { return "mattermost" }

// IsEnabled reports whether this notifier has a usable URL, token, and
// channel.
func (n *MattermostNotifier) IsEnabled() bool {
	return n.baseURL != "" && n.botToken != "" && n.channelID != ""
}

// PostFailureAlert implements Notifier.
func (n *MattermostNotifier) PostFailureAlert(ctx context.Context, alert FailureAlert) error {
	if !n.IsEnabled() {
		n.logger.Debug("mattermost ops notifier disabled, skipping alert", "tenant", alert.TenantSlug, "item_id", alert.ItemID)
		return nil
	}

	body, err := json.Marshal(mattermostPost{ChannelID: n.channelID, Message: formatText(alert)})
	if err != nil {
		return fmt.Errorf("encoding mattermost post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/v4/posts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building mattermost request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.botToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting failure alert to mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost post failed: status %d", resp.StatusCode)
	}
	return nil
}
