package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/dedup"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

const stopTimeout = 30 * time.Second

// SchedulerDeps wires the agent loop.
type SchedulerDeps struct {
	Driver   ports.Scheduler
	Pipeline *Pipeline
	Symbols  []domain.Symbol
	Config   config.SchedulerConfig
	// Index and Retention enable pruning of old seen identities after each cycle.
	Index     *dedup.Index
	Retention time.Duration
	Logger    zerolog.Logger
}

// CycleReport summarizes one pass over the watchlist.
type CycleReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SymbolResult
	// InFlight lists symbols skipped because the previous cycle still runs them.
	InFlight  []domain.Symbol
	Suspended []domain.Symbol
	// Err is set when the cycle halted the agent.
	Err error
}

// Persisted sums persisted articles over all symbols.
func (r CycleReport) Persisted() int {
	n := 0
	for _, res := range r.Results {
		n += res.Persisted
	}
	return n
}

// Dropped sums dropped articles over all symbols.
func (r CycleReport) Dropped() int {
	n := 0
	for _, res := range r.Results {
		n += res.Dropped
	}
	return n
}

type symbolState struct {
	stage     domain.Stage
	watermark time.Time
	running   bool
	suspended bool
}

// Scheduler is the agent loop: it runs the pipeline for every symbol once
// per interval and owns the per-symbol watermarks.
type Scheduler struct {
	driver    ports.Scheduler
	pipeline  *Pipeline
	symbols   []domain.Symbol
	cfg       config.SchedulerConfig
	index     *dedup.Index
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	states    map[domain.Symbol]*symbolState
	halted    error
	cancelled bool
}

// NewScheduler returns the agent loop. Watermarks start at now minus lookback.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		driver:    deps.Driver,
		pipeline:  deps.Pipeline,
		symbols:   deps.Symbols,
		cfg:       deps.Config,
		index:     deps.Index,
		retention: deps.Retention,
		logger:    deps.Logger,
		now:       time.Now,
		states:    make(map[domain.Symbol]*symbolState, len(deps.Symbols)),
	}
	for _, sym := range deps.Symbols {
		s.states[sym] = &symbolState{stage: domain.StageIdle}
	}
	return s
}

// Run executes one cycle immediately and then one per tick of the driver.
// It returns nil once ctx is cancelled, or the error that halted the agent.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.markCancelled(ctx)

	if report := s.RunCycle(runCtx); report.Err != nil {
		return report.Err
	}

	halt := make(chan error, 1)
	if s.driver != nil {
		job := func(time.Time) {
			if report := s.RunCycle(runCtx); report.Err != nil {
				select {
				case halt <- report.Err:
				default:
				}
			}
		}
		if err := s.driver.Start(runCtx, job); err != nil {
			return err
		}
		defer func() {
			cancel()
			s.stopDriver()
		}()
	}

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("agent loop stopped")
		return nil
	case err := <-halt:
		s.logger.Error().Err(err).Msg("agent halted")
		return err
	}
}

// RunCycle processes every eligible symbol once. Symbols run concurrently up
// to the configured fetch concurrency.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With().Str("cycle_id", report.ID).Logger()

	if err := s.haltErr(); err != nil {
		report.Err = err
		report.FinishedAt = s.now()
		return report
	}

	cycleCtx := ctx
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	log.Info().Int("symbols", len(s.symbols)).Msg("cycle started")

	var (
		resMu   sync.Mutex
		results []SymbolResult
	)

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(max(1, s.cfg.FetchConcurrency))

	for _, sym := range s.symbols {
		if gctx.Err() != nil {
			break
		}
		since, ok := s.claim(log, sym, &report)
		if !ok {
			continue
		}

		g.Go(func() error {
			res, err := s.pipeline.ProcessSymbol(gctx, report.ID, sym, since, func(st domain.Stage) {
				s.setStage(sym, st)
			})
			s.finish(log, sym, res, err, report.StartedAt)

			resMu.Lock()
			results = append(results, res)
			resMu.Unlock()

			if err != nil && !isContextErr(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.halt(err)
		report.Err = err
	}
	report.Results = results
	s.prune(ctx, log, report.StartedAt)
	report.FinishedAt = s.now()

	log.Info().
		Int("persisted", report.Persisted()).
		Int("dropped", report.Dropped()).
		Int("in_flight", len(report.InFlight)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle finished")

	return report
}

// State returns the current stage of symbol.
func (s *Scheduler) State(symbol domain.Symbol) domain.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return domain.StageCancelled
	}
	st, ok := s.states[symbol]
	if !ok {
		return domain.StageIdle
	}
	return st.stage
}

// Watermark returns the time up to which symbol has been fully processed.
func (s *Scheduler) Watermark(symbol domain.Symbol) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		return st.watermark
	}
	return time.Time{}
}

// Suspended reports whether symbol was disabled after a fatal fetch error.
func (s *Scheduler) Suspended(symbol domain.Symbol) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	return ok && st.suspended
}

func (s *Scheduler) claim(log zerolog.Logger, sym domain.Symbol, report *CycleReport) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[sym]
	switch {
	case st.suspended:
		report.Suspended = append(report.Suspended, sym)
		return time.Time{}, false
	case st.running:
		report.InFlight = append(report.InFlight, sym)
		log.Warn().Str("symbol", sym.String()).Msg("symbol still in flight from previous cycle, skipping")
		return time.Time{}, false
	}

	if st.watermark.IsZero() {
		st.watermark = report.StartedAt.Add(-s.cfg.Lookback)
	}
	st.running = true
	st.stage = domain.StageFetching
	return st.watermark.Add(-s.cfg.Overlap), true
}

func (s *Scheduler) setStage(sym domain.Symbol, stage domain.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sym].stage = stage
}

func (s *Scheduler) finish(log zerolog.Logger, sym domain.Symbol, res SymbolResult, err error, cycleStart time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[sym]
	st.running = false
	st.stage = domain.StageIdle
	log = log.With().Str("symbol", sym.String()).Logger()

	switch {
	case err != nil && isContextErr(err):
		st.stage = domain.StageCancelled
		log.Warn().Err(err).Msg("symbol abandoned")
		return
	case err != nil:
		return
	}

	if res.FetchErr != nil {
		if domain.KindOf(res.FetchErr) == domain.KindFatal {
			st.suspended = true
			log.Error().Err(res.FetchErr).Msg("fetch failed permanently, symbol suspended")
		} else {
			log.Warn().Err(res.FetchErr).Msg("fetch failed, retrying next cycle")
		}
	}

	if res.Clean() {
		st.watermark = cycleStart
	}

	log.Debug().
		Int("fetched", res.Fetched).
		Int("skipped", res.Skipped).
		Int("duplicates", res.Duplicates).
		Int("persisted", res.Persisted).
		Int("dropped", res.Dropped).
		Int("rejected", res.Rejected).
		Int("alerts", res.Alerts).
		Msg("symbol done")
}

func (s *Scheduler) prune(ctx context.Context, log zerolog.Logger, cycleStart time.Time) {
	if s.index == nil || s.retention <= 0 || ctx.Err() != nil {
		return
	}
	removed, err := s.index.Prune(ctx, cycleStart.Add(-s.retention))
	if err != nil {
		log.Warn().Err(err).Msg("seen store prune failed")
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("pruned seen identities")
	}
}

func (s *Scheduler) halt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted == nil {
		s.halted = err
	}
}

func (s *Scheduler) haltErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Scheduler) markCancelled(ctx context.Context) {
	if ctx.Err() == nil {
		return
	}
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *Scheduler) stopDriver() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.driver.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler driver did not stop cleanly")
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
