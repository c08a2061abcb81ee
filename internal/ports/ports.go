package ports

import (
	"context"
	"iter"
	"time"

	"FinNewsAgent/internal/domain"
)

// NewsSource pulls candidate articles for one symbol from an upstream provider.
// The sequence is lazy; an error element terminates it.
type NewsSource interface {
	Fetch(ctx context.Context, symbol domain.Symbol, since time.Time) iter.Seq2[domain.RawArticle, error]
}

// Analyzer sends an article to an AI model and returns its raw answer.
type Analyzer interface {
	Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error)
}

// RecordSink durably appends enriched records. Appending a stored identity
// returns domain.ErrAlreadyStored and writes nothing.
type RecordSink interface {
	Append(ctx context.Context, record domain.EnrichedRecord) error
}

// SeenStore persists dedup identities outside the record stream.
type SeenStore interface {
	LoadSeen(ctx context.Context) ([]domain.DedupRecord, error)
	MarkSeen(ctx context.Context, record domain.DedupRecord) error
	PruneSeen(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Notifier delivers alerts to an outbound channel (Slack, Telegram, etc.).
type Notifier interface {
	Send(ctx context.Context, event domain.AlertEvent) error
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
