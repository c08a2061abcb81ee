package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	goslack "github.com/slack-go/slack"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

const (
	colorPositive = "#36a64f"
	colorNegative = "#ff0000"
	colorShift    = "#ffae42"
)

// Notifier posts alerts to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook URL. A nil client uses http.DefaultClient.
func NewNotifier(webhookURL string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{webhookURL: webhookURL, client: client}
}

// Send posts one coloured attachment describing the alert.
func (n *Notifier) Send(ctx context.Context, event domain.AlertEvent) error {
	if n.webhookURL == "" {
		return errors.New("slack notifier misconfigured")
	}
	msg := BuildMessage(event)
	if err := goslack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// BuildMessage renders the webhook payload for event.
func BuildMessage(event domain.AlertEvent) *goslack.WebhookMessage {
	rec := event.Record
	headline := Headline(event)

	published := "unknown"
	if !rec.PublishedAt.IsZero() {
		published = rec.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	source := rec.SourceName
	if source == "" {
		source = "unknown"
	}
	topics := strings.Join(rec.Topics, ", ")
	if topics == "" {
		topics = "n/a"
	}

	attachment := goslack.Attachment{
		Color:     color(event),
		Fallback:  headline,
		Pretext:   "*" + headline + "*",
		Title:     rec.Title,
		TitleLink: rec.SourceURL,
		Text:      rec.Summary,
		Fields: []goslack.AttachmentField{
			{Title: "Symbol", Value: rec.Symbol.String(), Short: true},
			{Title: "Topics", Value: topics, Short: true},
			{Title: "Source", Value: source, Short: true},
			{Title: "Published", Value: published, Short: true},
			{Title: "Impact", Value: strconv.FormatFloat(rec.ImpactScore, 'f', 0, 64), Short: true},
			{Title: "Sentiment", Value: string(rec.Sentiment), Short: true},
		},
		MarkdownIn: []string{"pretext", "text"},
		Footer:     rec.ModelVersion,
		Ts:         jsonTimestamp(event),
	}

	return &goslack.WebhookMessage{
		Text:        headline,
		Attachments: []goslack.Attachment{attachment},
	}
}

// Headline is the one-line summary, e.g. "Positive Sentiment Alert: AAPL (earnings)".
func Headline(event domain.AlertEvent) string {
	rec := event.Record
	topic := "general"
	if len(rec.Topics) > 0 {
		topic = rec.Topics[0]
	}
	switch event.Reason {
	case domain.ReasonSentimentShift:
		return fmt.Sprintf("Sentiment Shift Alert: %s turned %s vs baseline %.2f (%s)",
			rec.Symbol, rec.Sentiment, event.Baseline, topic)
	default:
		return fmt.Sprintf("%s Sentiment Alert: %s (%s)", rec.Sentiment, rec.Symbol, topic)
	}
}

func color(event domain.AlertEvent) string {
	switch event.Reason {
	case domain.ReasonHighImpactPositive:
		return colorPositive
	case domain.ReasonHighImpactNegative:
		return colorNegative
	default:
		return colorShift
	}
}

func jsonTimestamp(event domain.AlertEvent) json.Number {
	if event.TriggeredAt.IsZero() {
		return ""
	}
	return json.Number(strconv.FormatInt(event.TriggeredAt.Unix(), 10))
}
