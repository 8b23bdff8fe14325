package forensics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/numledger/internal/domain"
)

// DefaultIncidentTopic is the pub/sub channel incidents are published on.
const DefaultIncidentTopic = "security.incidents"

// LogChannel writes incidents to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, incident *domain.ForensicIncident, report string) error {
	c.logger.Error().
		Str("incident_id", incident.ID).
		Str("user_id", incident.UserID).
		Str("wallet_id", incident.WalletID).
		Str("drift", incident.Drift.String()).
		Str("balance", incident.Balance.String()).
		Str("expected_sum", incident.ExpectedSum.String()).
		Str("action", incident.ActionTaken).
		Int("recent_transactions", len(incident.RecentTransactions)).
		Str("report", report).
		Msg("forensic incident")
	return nil
}

// WebhookChannel POSTs incidents as JSON.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a WebhookChannel. A nil client uses a client
// with a 10s timeout.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{url: url, client: client}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// webhookBody carries both a chat-friendly text and the structured payload.
type webhookBody struct {
	Text     string      `json:"text"`
	Incident domain.JSON `json:"incident"`
}

func (c *WebhookChannel) Send(ctx context.Context, incident *domain.ForensicIncident, report string) error {
	body, err := json.Marshal(webhookBody{Text: report, Incident: incident.AuditPayload()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// PubSubChannel publishes the incident JSON for other services.
type PubSubChannel struct {
	publisher MessagePublisher
	topic     string
}

// NewPubSubChannel creates a PubSubChannel. An empty topic uses
// DefaultIncidentTopic.
func NewPubSubChannel(publisher MessagePublisher, topic string) *PubSubChannel {
	if topic == "" {
		topic = DefaultIncidentTopic
	}
	return &PubSubChannel{publisher: publisher, topic: topic}
}

func (c *PubSubChannel) Name() string { return "pubsub" }

func (c *PubSubChannel) Send(ctx context.Context, incident *domain.ForensicIncident, _ string) error {
	payload, err := json.Marshal(incident.AuditPayload())
	if err != nil {
		return err
	}

	_, err = c.publisher.Publish(ctx, c.topic, payload)
	return err
}

// ChannelConfig selects the channels returned by BuildChannels.
type ChannelConfig struct {
	Log        bool
	Logger     zerolog.Logger
	WebhookURL string

	// Publisher and Topic enable the pub/sub channel when both are set.
	Publisher MessagePublisher
	Topic     string
}

// BuildChannels returns the enabled channels in log, webhook, pubsub order.
func BuildChannels(cfg ChannelConfig) []Channel {
	var channels []Channel

	if cfg.Log {
		channels = append(channels, NewLogChannel(cfg.Logger))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhookChannel(cfg.WebhookURL, nil))
	}
	if cfg.Publisher != nil && cfg.Topic != "" {
		channels = append(channels, NewPubSubChannel(cfg.Publisher, cfg.Topic))
	}

	return channels
}
