package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/dedup"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// PipelineDeps wires the driven adapters into the per-symbol pipeline.
type PipelineDeps struct {
	Source    ports.NewsSource
	Enricher  *Enricher
	Sink      ports.RecordSink
	Index     *dedup.Index
	Evaluator AlertEvaluator
	Baselines *BaselineTracker
	Alerts    *AlertDispatcher
	Logger    zerolog.Logger
}

// Pipeline moves one symbol's articles through fetch, dedup, enrichment,
// persistence and alert evaluation.
type Pipeline struct {
	source    ports.NewsSource
	enricher  *Enricher
	sink      ports.RecordSink
	index     *dedup.Index
	evaluator AlertEvaluator
	baselines *BaselineTracker
	alerts    *AlertDispatcher
	logger    zerolog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	baselines := deps.Baselines
	if baselines == nil {
		baselines = NewBaselineTracker(1)
	}
	return &Pipeline{
		source:    deps.Source,
		enricher:  deps.Enricher,
		sink:      deps.Sink,
		index:     deps.Index,
		evaluator: deps.Evaluator,
		baselines: baselines,
		alerts:    deps.Alerts,
		logger:    deps.Logger,
	}
}

// SymbolResult summarizes one symbol's pass.
type SymbolResult struct {
	Symbol     domain.Symbol
	Fetched    int
	Skipped    int
	Duplicates int
	Persisted  int
	Dropped    int
	// Rejected articles had an unusable analysis; they are marked seen and not retried.
	Rejected int
	Alerts   int
	// FetchErr ends the symbol's fetch early; articles yielded before it were processed.
	FetchErr error
}

// Clean reports whether the watermark may advance past this pass.
func (r SymbolResult) Clean() bool {
	return r.FetchErr == nil && r.Dropped == 0
}

// ProcessSymbol runs one symbol through the pipeline. The returned error is
// non-nil only when the record stream failed and the agent must halt, or
// when ctx was cancelled.
func (p *Pipeline) ProcessSymbol(ctx context.Context, cycleID string, symbol domain.Symbol, since time.Time, stage func(domain.Stage)) (SymbolResult, error) {
	if stage == nil {
		stage = func(domain.Stage) {}
	}
	res := SymbolResult{Symbol: symbol}
	log := p.logger.With().Str("cycle_id", cycleID).Str("symbol", symbol.String()).Logger()

	stage(domain.StageFetching)
	for article, err := range p.source.Fetch(ctx, symbol, since) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.FetchErr = err
			break
		}
		res.Fetched++

		if !article.HasContent() || article.Identity == "" {
			res.Skipped++
			log.Debug().Str("url", article.SourceURL).Msg("article without content skipped")
			continue
		}
		if !p.index.Reserve(article.Identity) {
			res.Duplicates++
			continue
		}

		outcome, err := p.processArticle(ctx, log, article, stage)
		switch outcome {
		case outcomePersisted:
			res.Persisted++
		case outcomeAlerted:
			res.Persisted++
			res.Alerts++
		case outcomeDropped:
			res.Dropped++
		case outcomeRejected:
			res.Rejected++
		case outcomeStored:
			res.Duplicates++
		}
		if err != nil {
			return res, err
		}
		stage(domain.StageFetching)
	}

	return res, nil
}

type articleOutcome int

const (
	outcomeAbandoned articleOutcome = iota
	outcomeDropped
	outcomeRejected
	outcomeStored
	outcomePersisted
	outcomeAlerted
)

// processArticle owns the reservation of article.Identity: it commits it after
// a durable append, marks it seen when the analysis is unusable, or releases it.
func (p *Pipeline) processArticle(ctx context.Context, log zerolog.Logger, article domain.RawArticle, stage func(domain.Stage)) (articleOutcome, error) {
	stage(domain.StageEnriching)
	record, err := p.enricher.Enrich(ctx, article)
	if err != nil {
		if ctx.Err() != nil {
			p.index.Release(article.Identity)
			return outcomeAbandoned, ctx.Err()
		}
		if domain.KindOf(err) == domain.KindParse {
			p.index.RecordSeen(ctx, article.Identity, article.Symbol, p.enricher.now().UTC())
			log.Warn().
				Err(err).
				Str("identity", article.Identity).
				Str("stage", string(domain.StageEnriching)).
				Str("kind", domain.KindParse.String()).
				Msg("article rejected")
			return outcomeRejected, nil
		}
		p.index.Release(article.Identity)
		p.dropped(log, article, domain.StageEnriching, err)
		return outcomeDropped, nil
	}

	stage(domain.StagePersisting)
	err = p.sink.Append(ctx, record)
	if errors.Is(err, domain.ErrAlreadyStored) {
		p.index.Commit(ctx, domain.DedupRecord{
			Identity:  record.Identity,
			Symbol:    record.Symbol,
			FirstSeen: record.AnalyzedAt,
		})
		log.Debug().Str("identity", record.Identity).Msg("article already stored")
		return outcomeStored, nil
	}
	if err != nil {
		p.index.Release(article.Identity)
		p.dropped(log, article, domain.StagePersisting, err)
		if domain.KindOf(err) == domain.KindFatal || domain.KindOf(err) == domain.KindUnknown {
			return outcomeDropped, err
		}
		return outcomeDropped, nil
	}
	p.index.Commit(ctx, domain.DedupRecord{
		Identity:  record.Identity,
		Symbol:    record.Symbol,
		FirstSeen: record.AnalyzedAt,
	})

	log.Info().
		Str("identity", record.Identity).
		Str("sentiment", string(record.Sentiment)).
		Float64("impact_score", record.ImpactScore).
		Msg("article persisted")

	stage(domain.StageEvaluating)
	baseline := p.baselines.Baseline(record.Symbol)
	event, ok := p.evaluator.Evaluate(record, baseline)
	p.baselines.Observe(record)
	if !ok {
		return outcomePersisted, nil
	}
	if p.alerts != nil {
		p.alerts.Dispatch(event)
	}
	return outcomeAlerted, nil
}

// dropped emits the single log entry for an article abandoned this cycle.
func (p *Pipeline) dropped(log zerolog.Logger, article domain.RawArticle, stage domain.Stage, err error) {
	kind := domain.KindOf(err)
	if s := domain.StageOf(err); s != domain.StageIdle {
		stage = s
	}
	if kind == domain.KindUnknown && stage == domain.StagePersisting {
		kind = domain.KindFatal
	}

	ev := log.Warn()
	if kind == domain.KindFatal {
		ev = log.Error()
	}
	ev.Err(err).
		Str("identity", article.Identity).
		Str("stage", string(stage)).
		Str("kind", kind.String()).
		Msg("article dropped this cycle")
}
