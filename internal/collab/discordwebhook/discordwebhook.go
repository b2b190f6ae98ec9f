// Package discordwebhook is a rate-limited EventObserver that posts
// group_state_changed notifications to a Discord webhook URL.
package discordwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	webhookPrefixA = "https://discord.com/api/webhooks/"
	webhookPrefixB = "https://discordapp.com/api/webhooks/"
	defaultUser    = "SpiritStream"
)

type payload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Notifier posts events to a Discord webhook, rate-limited so a burst of
// group state changes never floods the channel.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a Notifier for webhookURL, rejecting URLs that don't match
// Discord's webhook host. minInterval bounds the minimum gap between sends
// (0 uses a sensible default of one notification per 10 seconds).
func New(webhookURL string, minInterval time.Duration) (*Notifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("discordwebhook: webhook URL is not configured")
	}
	if !strings.HasPrefix(webhookURL, webhookPrefixA) && !strings.HasPrefix(webhookURL, webhookPrefixB) {
		return nil, fmt.Errorf("discordwebhook: invalid Discord webhook URL")
	}
	if minInterval <= 0 {
		minInterval = 10 * time.Second
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
	}, nil
}

// SendEvent implements collab.EventObserver. If the rate limit has not
// replenished, the event is silently dropped rather than queued — Discord
// notifications are best-effort, not an audit trail.
func (n *Notifier) SendEvent(ctx context.Context, name string, data any) error {
	if !n.limiter.Allow() {
		return nil
	}

	body := payload{Content: formatMessage(name, data), Username: defaultUser}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("discordwebhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("discordwebhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discordwebhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || (resp.StatusCode >= 200 && resp.StatusCode < 300):
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("discordwebhook: rate limited by Discord")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("discordwebhook: invalid webhook URL or webhook deleted")
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("discordwebhook: webhook not found")
	default:
		return fmt.Errorf("discordwebhook: unexpected status %d", resp.StatusCode)
	}
}

func formatMessage(name string, data any) string {
	return fmt.Sprintf("**%s**: %v", name, data)
}
