package usecase

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/dedup"
	"FinNewsAgent/internal/domain"
)

var baseTime = time.Date(2025, time.March, 3, 14, 0, 0, 0, time.UTC)

// syncBuffer collects log output from concurrent goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) count(message string) int {
	return strings.Count(b.String(), fmt.Sprintf(`"message":%q`, message))
}

func testLogger() (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf).Level(zerolog.DebugLevel), buf
}

func article(symbol domain.Symbol, id string) domain.RawArticle {
	return domain.RawArticle{
		Identity:    id,
		Symbol:      symbol,
		Title:       "Headline " + id,
		Body:        "Body of " + id,
		PublishedAt: baseTime,
		SourceURL:   id,
		SourceName:  "Reuters",
	}
}

func payload(sentiment string, impact float64) domain.Analysis {
	return domain.Analysis{
		Payload:      []byte(fmt.Sprintf(`{"sentiment":%q,"topics":["earnings"],"impact_score":%g,"summary":"ok"}`, sentiment, impact)),
		ModelVersion: "test-model",
	}
}

type fetchItem struct {
	article domain.RawArticle
	err     error
}

type fakeSource struct {
	mu     sync.Mutex
	items  map[domain.Symbol][]fetchItem
	since  map[domain.Symbol][]time.Time
	calls  map[domain.Symbol]int
	gate   map[domain.Symbol]chan struct{}
	inside map[domain.Symbol]chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		items:  make(map[domain.Symbol][]fetchItem),
		since:  make(map[domain.Symbol][]time.Time),
		calls:  make(map[domain.Symbol]int),
		gate:   make(map[domain.Symbol]chan struct{}),
		inside: make(map[domain.Symbol]chan struct{}),
	}
}

func (f *fakeSource) add(symbol domain.Symbol, articles ...domain.RawArticle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range articles {
		f.items[symbol] = append(f.items[symbol], fetchItem{article: a})
	}
}

func (f *fakeSource) fail(symbol domain.Symbol, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[symbol] = append(f.items[symbol], fetchItem{err: err})
}

// block makes the next fetches of symbol wait until the returned func is called.
func (f *fakeSource) block(symbol domain.Symbol) (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{}, 1)
	f.gate[symbol] = gate
	f.inside[symbol] = in
	return in, func() { close(gate) }
}

func (f *fakeSource) sinceFor(symbol domain.Symbol) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.since[symbol]...)
}

func (f *fakeSource) callsFor(symbol domain.Symbol) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeSource) Fetch(ctx context.Context, symbol domain.Symbol, since time.Time) iter.Seq2[domain.RawArticle, error] {
	return func(yield func(domain.RawArticle, error) bool) {
		f.mu.Lock()
		f.calls[symbol]++
		f.since[symbol] = append(f.since[symbol], since)
		items := append([]fetchItem(nil), f.items[symbol]...)
		gate := f.gate[symbol]
		in := f.inside[symbol]
		f.mu.Unlock()

		if gate != nil {
			select {
			case in <- struct{}{}:
			default:
			}
			select {
			case <-gate:
			case <-ctx.Done():
				yield(domain.RawArticle{}, ctx.Err())
				return
			}
		}

		for _, it := range items {
			if !yield(it.article, it.err) {
				return
			}
			if it.err != nil {
				return
			}
		}
	}
}

type fakeAnalyzer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, a domain.RawArticle, call int) (domain.Analysis, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, a domain.RawArticle) (domain.Analysis, error) {
	n := int(f.calls.Add(1))
	if f.fn == nil {
		return payload("Positive", 10), nil
	}
	return f.fn(ctx, a, n)
}

type fakeSink struct {
	mu      sync.Mutex
	records []domain.EnrichedRecord
	ids     map[string]bool
	err     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{ids: make(map[string]bool)}
}

func (s *fakeSink) Append(_ context.Context, rec domain.EnrichedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.ids[rec.Identity] {
		return domain.ErrAlreadyStored
	}
	s.ids[rec.Identity] = true
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) all() []domain.EnrichedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EnrichedRecord(nil), s.records...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	err    error
	block  chan struct{}
}

func (n *fakeNotifier) Send(ctx context.Context, event domain.AlertEvent) error {
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *fakeNotifier) received() []domain.AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.AlertEvent(nil), n.events...)
}

type fakeDriver struct {
	mu      sync.Mutex
	job     func(time.Time)
	started chan struct{}
	stopped bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{started: make(chan struct{})}
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	d.job = job
	d.mu.Unlock()
	close(d.started)
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *fakeDriver) tick() {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(time.Now())
}

func testEnricher(analyzer *fakeAnalyzer, logger zerolog.Logger) *Enricher {
	e := NewEnricher(analyzer, EnricherConfig{
		Concurrency:    4,
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}, logger)
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	e.now = func() time.Time { return baseTime.Add(time.Hour) }
	return e
}

type harness struct {
	source    *fakeSource
	analyzer  *fakeAnalyzer
	sink      *fakeSink
	index     *dedup.Index
	notifier  *fakeNotifier
	alerts    *AlertDispatcher
	pipeline  *Pipeline
	scheduler *Scheduler
	logs      *syncBuffer
	now       time.Time
}

func newHarness(symbols ...domain.Symbol) *harness {
	logger, logs := testLogger()
	h := &harness{
		source:   newFakeSource(),
		analyzer: &fakeAnalyzer{},
		sink:     newFakeSink(),
		index:    dedup.New(nil, logger),
		notifier: &fakeNotifier{},
		logs:     logs,
		now:      baseTime,
	}
	h.alerts = NewAlertDispatcher(h.notifier, config.AlertConfig{Timeout: time.Second, QueueSize: 16}, logger)
	h.pipeline = NewPipeline(PipelineDeps{
		Source:   h.source,
		Enricher: testEnricher(h.analyzer, logger),
		Sink:     h.sink,
		Index:    h.index,
		Evaluator: NewAlertEvaluator(AlertPolicy{
			HighImpactThreshold: 70,
			ShiftDelta:          1,
			MinBaselineSamples:  3,
		}),
		Baselines: NewBaselineTracker(10),
		Alerts:    h.alerts,
		Logger:    logger,
	})
	h.scheduler = NewScheduler(SchedulerDeps{
		Pipeline: h.pipeline,
		Symbols:  symbols,
		Config: config.SchedulerConfig{
			Interval:         15 * time.Minute,
			Lookback:         24 * time.Hour,
			Overlap:          10 * time.Minute,
			FetchConcurrency: 4,
		},
		Logger: logger,
	})
	h.scheduler.now = func() time.Time { return h.now }
	return h
}
