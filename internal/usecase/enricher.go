package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// EnricherConfig bounds concurrency, pacing and retries of analyzer calls.
type EnricherConfig struct {
	Concurrency       int
	MaxAttempts       int
	AttemptTimeout    time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	RequestsPerMinute int
}

// NewEnricherConfig merges the enrichment and AI sections.
func NewEnricherConfig(e config.EnrichmentConfig, ai config.AIConfig) EnricherConfig {
	return EnricherConfig{
		Concurrency:       e.Concurrency,
		MaxAttempts:       e.MaxAttempts,
		AttemptTimeout:    ai.Timeout,
		InitialBackoff:    e.InitialBackoff,
		MaxBackoff:        e.MaxBackoff,
		Multiplier:        e.Multiplier,
		RequestsPerMinute: ai.RequestsPerMinute,
	}
}

// Enricher turns raw articles into enriched records through an Analyzer.
// At most Concurrency analyzer calls are in flight across all callers.
type Enricher struct {
	analyzer ports.Analyzer
	cfg      EnricherConfig
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEnricher applies defaults for zero values in cfg.
func NewEnricher(analyzer ports.Analyzer, cfg EnricherConfig, logger zerolog.Logger) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}

	e := &Enricher{
		analyzer: analyzer,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60)
		e.limiter = rate.NewLimiter(perSecond, max(1, cfg.Concurrency))
	}
	return e
}

// Enrich analyzes article, retrying transient failures with exponential
// backoff up to MaxAttempts. Parse and fatal failures are returned at once.
func (e *Enricher) Enrich(ctx context.Context, article domain.RawArticle) (domain.EnrichedRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		analysis, err := e.attempt(ctx, article)
		if err == nil {
			return e.parse(article, analysis)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.EnrichedRecord{}, ctxErr
		}
		if domain.KindOf(err) != domain.KindTransient {
			return domain.EnrichedRecord{}, err
		}

		lastErr = err
		if attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.backoff(attempt, domain.RetryAfterOf(err))
		e.logger.Debug().
			Err(err).
			Str("identity", article.Identity).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("analyzer call failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return domain.EnrichedRecord{}, err
		}
	}

	return domain.EnrichedRecord{}, fmt.Errorf("gave up after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// attempt performs one rate-limited analyzer call holding a concurrency permit.
func (e *Enricher) attempt(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return domain.Analysis{}, err
	}
	defer e.sem.Release(1)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return domain.Analysis{}, ctx.Err()
			}
			return domain.Analysis{}, domain.Transient(domain.StageEnriching, fmt.Errorf("rate limiter: %w", err))
		}
	}

	callCtx := ctx
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}

	analysis, err := e.analyzer.Analyze(callCtx, article)
	if err == nil {
		return analysis, nil
	}

	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return domain.Analysis{}, domain.Transient(domain.StageEnriching,
			fmt.Errorf("analyzer timed out after %s: %w", e.cfg.AttemptTimeout, err))
	}
	if domain.KindOf(err) == domain.KindUnknown {
		// Unclassified adapter errors are treated like network failures.
		return domain.Analysis{}, domain.Transient(domain.StageEnriching, err)
	}
	return domain.Analysis{}, err
}

func (e *Enricher) parse(article domain.RawArticle, analysis domain.Analysis) (domain.EnrichedRecord, error) {
	parsed, err := ParseEnrichment(analysis.Payload)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("identity", article.Identity).
			Str("symbol", article.Symbol.String()).
			Str("payload", string(analysis.Payload)).
			Msg("analysis rejected")
		return domain.EnrichedRecord{}, err
	}

	for _, warning := range parsed.Warnings {
		e.logger.Warn().
			Str("identity", article.Identity).
			Str("symbol", article.Symbol.String()).
			Msg(warning)
	}

	return domain.EnrichedRecord{
		RawArticle:   article,
		Sentiment:    parsed.Sentiment,
		Topics:       parsed.Topics,
		ImpactScore:  parsed.ImpactScore,
		Summary:      parsed.Summary,
		AnalyzedAt:   e.now().UTC(),
		ModelVersion: analysis.ModelVersion,
	}, nil
}

func (e *Enricher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := time.Duration(float64(e.cfg.InitialBackoff) * math.Pow(e.cfg.Multiplier, float64(attempt-1)))
	if e.cfg.MaxBackoff > 0 && delay > e.cfg.MaxBackoff {
		delay = e.cfg.MaxBackoff
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
