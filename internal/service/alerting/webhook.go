package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	xhttp "FinGuard/pkg/http"
)

// WebhookSink posts alerts to a Slack-compatible incoming webhook.
type WebhookSink struct {
	url    string
	client *xhttp.Client
}

var _ drepo.AlertSink = (*WebhookSink)(nil)

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: xhttp.NewClient(xhttp.WithTimeout(timeout))}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, a models.AlertRecord) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.url,
		Body:   SlackPayload(a),
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func emoji(level models.AlertLevel) string {
	switch level {
	case models.AlertInfo:
		return ":information_source:"
	case models.AlertWarning:
		return ":warning:"
	case models.AlertCritical:
		return ":rotating_light:"
	default:
		return ":bell:"
	}
}

// SlackPayload renders an alert as a header, a severity/time section and a
// message section.
func SlackPayload(a models.AlertRecord) slackMessage {
	e := emoji(a.Severity)
	title := strings.ToUpper(a.Type) + " Alert"
	return slackMessage{
		Text: fmt.Sprintf("%s *%s*", e, title),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: e + " " + title}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: "*Severity:*\n" + string(a.Severity)},
				{Type: "mrkdwn", Text: "*Time:*\n" + a.Timestamp.UTC().Format(time.RFC3339)},
			}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*Message:*\n" + a.Message}},
		},
	}
}
