package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts a Markdown message to Telegram.
func (n *Notifier) Send(ctx context.Context, event domain.AlertEvent) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(n.apiBase, "/"), n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatMessage(event))
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatMessage renders event as Telegram Markdown.
func FormatMessage(event domain.AlertEvent) string {
	rec := event.Record
	var b strings.Builder

	switch event.Reason {
	case domain.ReasonHighImpactPositive:
		b.WriteString("🟢 *High impact, positive*")
	case domain.ReasonHighImpactNegative:
		b.WriteString("🔴 *High impact, negative*")
	default:
		fmt.Fprintf(&b, "🟠 *Sentiment shift* (baseline %.2f)", event.Baseline)
	}
	fmt.Fprintf(&b, " `%s`\n", rec.Symbol)

	fmt.Fprintf(&b, "[%s](%s)\n", escape(rec.Title), rec.SourceURL)
	if rec.Summary != "" {
		b.WriteString(escape(rec.Summary))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Sentiment: %s | Impact: %.0f", rec.Sentiment, rec.ImpactScore)
	if len(rec.Topics) > 0 {
		fmt.Fprintf(&b, " | Topics: %s", escape(strings.Join(rec.Topics, ", ")))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
