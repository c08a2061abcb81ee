package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinNewsAgent/internal/domain"
)

func sampleEvent() domain.AlertEvent {
	return domain.AlertEvent{
		Reason: domain.ReasonHighImpactNegative,
		Record: domain.EnrichedRecord{
			RawArticle: domain.RawArticle{
				Symbol:    "TSLA",
				Title:     "Recall_announced",
				SourceURL: "https://news.test/recall",
			},
			Sentiment:   domain.SentimentNegative,
			Topics:      []string{"recall"},
			ImpactScore: 91,
			Summary:     "Large recall.",
		},
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	msg := FormatMessage(sampleEvent())
	for _, want := range []string{"High impact, negative", "`TSLA`", `[Recall\_announced](https://news.test/recall)`, "Impact: 91", "Topics: recall"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not contain %q", msg, want)
		}
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("chat_id") != "42" || r.Form.Get("parse_mode") != "Markdown" {
			t.Errorf("unexpected form %v", r.Form)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("token", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").Send(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected misconfiguration error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("token", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected status error")
	}
}
