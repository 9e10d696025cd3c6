// Package slack posts health reports to a Slack incoming webhook using
// Block Kit formatting.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jonesrussell/airflow-health/internal/httpx"
	"github.com/jonesrussell/airflow-health/internal/logger"
)

// ErrDisabled is returned when no webhook URL is configured.
var ErrDisabled = errors.New("slack notifications disabled: no webhook url configured")

// Config holds the Slack webhook settings.
type Config struct {
	WebhookURL string `env:"SLACK_WEBHOOK_URL" yaml:"webhook_url"`
	Channel    string `env:"SLACK_CHANNEL"     yaml:"channel"`
}

// Message is a Slack webhook payload. Blocks carry the formatting; Text
// is the notification fallback.
type Message struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// Block is one Block Kit block.
type Block struct {
	Type   string `json:"type"`
	Text   *Text  `json:"text,omitempty"`
	Fields []Text `json:"fields,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Header returns a header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text}}
}

// Section returns a markdown section block.
func Section(markdown string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: markdown}}
}

// FieldSection returns a section block with side-by-side markdown fields.
func FieldSection(fields ...string) Block {
	texts := make([]Text, 0, len(fields))
	for _, f := range fields {
		texts = append(texts, Text{Type: "mrkdwn", Text: f})
	}
	return Block{Type: "section", Fields: texts}
}

// Divider returns a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

// Notifier posts messages to one incoming webhook.
type Notifier struct {
	webhookURL string
	channel    string
	httpClient *http.Client
	log        logger.Logger
}

// NewNotifier creates a Slack notifier. An empty webhook URL produces a
// disabled notifier whose Send returns ErrDisabled.
func NewNotifier(cfg Config, log logger.Logger) *Notifier {
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		httpClient: httpx.NewClient(nil),
		log:        log,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send posts one message to the webhook.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return ErrDisabled
	}
	if msg.Channel == "" {
		msg.Channel = n.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	n.log.Debug("Slack message sent", logger.Int("blocks", len(msg.Blocks)))
	return nil
}
