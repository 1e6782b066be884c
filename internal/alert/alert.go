// Package alert reports operational failures that need a human to look at them.
package alert

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"idurar.org/internal/obs"
)

// Alert is a single operational notice.
type Alert struct {
	Title   string
	Message string
	Fields  map[string]string
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the process logger at error level.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, a Alert) error {
	fields := []zap.Field{zap.String("type", "alert"), zap.String("title", a.Title)}
	for _, k := range sortedKeys(a.Fields) {
		fields = append(fields, zap.String(k, a.Fields[k]))
	}
	obs.Logger().Error(a.Message, fields...)
	return nil
}

// SlackNotifier posts alerts to a Slack incoming webhook and always logs them.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	fallback   LogNotifier
}

// NewSlack returns a notifier posting to webhookURL. A nil client uses a 10s timeout client.
func NewSlack(webhookURL string, client *http.Client) (*SlackNotifier, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{webhookURL: webhookURL, client: client}, nil
}

func (s *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	_ = s.fallback.Notify(ctx, a)

	attachment := slack.Attachment{
		Color: "danger",
		Title: a.Title,
		Text:  a.Message,
	}
	for _, k := range sortedKeys(a.Fields) {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: k,
			Value: a.Fields[k],
			Short: true,
		})
	}
	msg := &slack.WebhookMessage{
		Text:        ":rotating_light: " + a.Title,
		Attachments: []slack.Attachment{attachment},
	}
	return slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg)
}

// New picks the Slack notifier when a webhook URL is configured, otherwise the log notifier.
func New(slackWebhookURL string) Notifier {
	if strings.TrimSpace(slackWebhookURL) == "" {
		return LogNotifier{}
	}
	n, err := NewSlack(slackWebhookURL, nil)
	if err != nil {
		return LogNotifier{}
	}
	return n
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
