package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/dedup"
	"FinNewsAgent/internal/infrastructure/llm"
	"FinNewsAgent/internal/infrastructure/newsapi"
	"FinNewsAgent/internal/infrastructure/notify"
	"FinNewsAgent/internal/infrastructure/scheduler"
	"FinNewsAgent/internal/infrastructure/slack"
	"FinNewsAgent/internal/infrastructure/storage"
	"FinNewsAgent/internal/infrastructure/telegram"
	"FinNewsAgent/internal/logging"
	"FinNewsAgent/internal/ports"
	"FinNewsAgent/internal/usecase"
	"FinNewsAgent/internal/watchlist"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    zerolog.Logger
	stream    *storage.RecordStream
	seen      ports.SeenStore
	alerts    *usecase.AlertDispatcher
	scheduler *usecase.Scheduler
}

// New opens storage, seeds the dedup index and builds every adapter.
// The caller must Close the application.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*Application, error) {
	base := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if logger != nil {
		base = *logger
	}

	symbols, err := watchlist.New(cfg.Watchlist)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: base}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.stream, err = storage.OpenRecordStream(cfg.Storage.RecordsPath, base.With().Str("component", "records").Logger())
	if err != nil {
		return nil, fmt.Errorf("open record stream: %w", err)
	}

	a.seen, err = storage.OpenSeenStore(ctx, cfg.Storage.Seen, base.With().Str("component", "seen").Logger())
	if err != nil {
		return nil, fmt.Errorf("open seen store: %w", err)
	}

	index := dedup.New(a.seen, base.With().Str("component", "dedup").Logger())
	seedIndex(ctx, index, a.stream, a.seen, base)

	analyzer, err := llm.DefaultRegistry().Build(ctx, cfg.AI, base.With().Str("component", "llm."+cfg.AI.Provider).Logger())
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}

	a.alerts = usecase.NewAlertDispatcher(buildNotifier(cfg.Notifications, cfg.Alerts, base), cfg.Alerts,
		base.With().Str("component", "alerts").Logger())
	go a.watchFailures()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    newsapi.NewClient(cfg.News, base.With().Str("component", "newsapi").Logger()),
		Enricher:  usecase.NewEnricher(analyzer, usecase.NewEnricherConfig(cfg.Enrichment, cfg.AI), base.With().Str("component", "enricher").Logger()),
		Sink:      a.stream,
		Index:     index,
		Evaluator: usecase.NewAlertEvaluator(usecase.NewAlertPolicy(cfg.Alerts)),
		Baselines: usecase.NewBaselineTracker(cfg.Alerts.BaselineWindow),
		Alerts:    a.alerts,
		Logger:    base.With().Str("component", "pipeline").Logger(),
	})

	a.scheduler = usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:    scheduler.NewCronScheduler(cfg.Scheduler.Interval, base.With().Str("component", "cron").Logger()),
		Pipeline:  pipeline,
		Symbols:   symbols.Symbols(),
		Config:    cfg.Scheduler,
		Index:     index,
		Retention: cfg.Storage.Seen.Retention,
		Logger:    base.With().Str("component", "scheduler").Logger(),
	})

	base.Info().
		Int("symbols", symbols.Len()).
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Str("seen_backend", cfg.Storage.Seen.Backend).
		Int("seen", index.Len()).
		Dur("interval", cfg.Scheduler.Interval).
		Msg("agent configured")

	ok = true
	return a, nil
}

// Run blocks until ctx is cancelled or the agent halts.
func (a *Application) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Run(ctx)
}

// RunOnce performs a single cycle over the watchlist.
func (a *Application) RunOnce(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.RunCycle(ctx).Err
}

// Close drains pending alerts and releases storage. It is safe to call on a
// partially built application.
func (a *Application) Close() error {
	if a.alerts != nil {
		a.alerts.Close()
	}
	var errs []error
	if a.seen != nil {
		errs = append(errs, a.seen.Close())
	}
	if a.stream != nil {
		errs = append(errs, a.stream.Close())
	}
	return errors.Join(errs...)
}

func (a *Application) watchFailures() {
	for failure := range a.alerts.Failures() {
		a.logger.Debug().
			Err(failure.Err).
			Str("identity", failure.Event.Record.Identity).
			Msg("alert not delivered")
	}
}

// seedIndex loads identities from the record stream and the seen store.
func seedIndex(ctx context.Context, index *dedup.Index, stream *storage.RecordStream, seen ports.SeenStore, logger zerolog.Logger) {
	fromStream := index.Seed(stream.Identities())

	fromStore := 0
	if seen != nil {
		records, err := seen.LoadSeen(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("seen store unavailable, relying on record stream")
		} else {
			fromStore = index.Seed(records)
		}
	}

	logger.Info().
		Str("path", stream.Path()).
		Int("from_stream", fromStream).
		Int("from_store", fromStore).
		Msg("dedup index seeded")
}

func buildNotifier(cfg config.NotificationConfig, alerts config.AlertConfig, logger zerolog.Logger) ports.Notifier {
	var targets []notify.Named
	if cfg.Slack.WebhookURL != "" {
		targets = append(targets, notify.Named{
			Name:     "slack",
			Notifier: slack.NewNotifier(cfg.Slack.WebhookURL, &http.Client{Timeout: alerts.Timeout}),
		})
	}
	if cfg.Telegram.BotToken != "" {
		targets = append(targets, notify.Named{
			Name:     "telegram",
			Notifier: telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
		})
	}

	multi := notify.NewMulti(targets...)
	if multi.Len() == 0 {
		logger.Info().Msg("no notification channel configured, alerts are logged only")
		return nil
	}
	logger.Info().Strs("channels", multi.Names()).Msg("alert channels ready")
	return multi
}
