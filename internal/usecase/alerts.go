package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// AlertPolicy holds the trigger thresholds.
type AlertPolicy struct {
	HighImpactThreshold float64
	ShiftDelta          float64
	MinBaselineSamples  int
}

// NewAlertPolicy reads thresholds from config.
func NewAlertPolicy(cfg config.AlertConfig) AlertPolicy {
	return AlertPolicy{
		HighImpactThreshold: cfg.HighImpactThreshold,
		ShiftDelta:          cfg.ShiftDelta,
		MinBaselineSamples:  cfg.MinBaselineSamples,
	}
}

// Baseline is the rolling mean sentiment score of a symbol.
type Baseline struct {
	Mean    float64
	Samples int
}

// AlertEvaluator decides whether a record is worth an alert.
type AlertEvaluator struct {
	policy AlertPolicy
}

func NewAlertEvaluator(policy AlertPolicy) AlertEvaluator {
	return AlertEvaluator{policy: policy}
}

// Evaluate returns at most one event for rec. A high-impact directional
// record wins over a sentiment shift.
func (e AlertEvaluator) Evaluate(rec domain.EnrichedRecord, baseline Baseline) (domain.AlertEvent, bool) {
	event := domain.AlertEvent{
		Record:      rec,
		TriggeredAt: rec.AnalyzedAt,
		Baseline:    baseline.Mean,
	}

	if rec.ImpactScore > e.policy.HighImpactThreshold && !rec.Sentiment.IsNeutral() {
		if rec.Sentiment == domain.SentimentPositive {
			event.Reason = domain.ReasonHighImpactPositive
		} else {
			event.Reason = domain.ReasonHighImpactNegative
		}
		return event, true
	}

	if e.policy.ShiftDelta <= 0 || baseline.Samples < max(1, e.policy.MinBaselineSamples) {
		return domain.AlertEvent{}, false
	}
	if math.Abs(rec.Sentiment.Score()-baseline.Mean) >= e.policy.ShiftDelta {
		event.Reason = domain.ReasonSentimentShift
		return event, true
	}
	return domain.AlertEvent{}, false
}

// BaselineTracker keeps the last N sentiment scores per symbol.
type BaselineTracker struct {
	window int

	mu     sync.Mutex
	scores map[domain.Symbol][]float64
}

func NewBaselineTracker(window int) *BaselineTracker {
	if window <= 0 {
		window = 1
	}
	return &BaselineTracker{window: window, scores: make(map[domain.Symbol][]float64)}
}

// Baseline returns the current mean for symbol.
func (t *BaselineTracker) Baseline(symbol domain.Symbol) Baseline {
	t.mu.Lock()
	defer t.mu.Unlock()

	scores := t.scores[symbol]
	if len(scores) == 0 {
		return Baseline{}
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return Baseline{Mean: sum / float64(len(scores)), Samples: len(scores)}
}

// Observe adds rec to its symbol's window.
func (t *BaselineTracker) Observe(rec domain.EnrichedRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	scores := append(t.scores[rec.Symbol], rec.Sentiment.Score())
	if len(scores) > t.window {
		scores = scores[len(scores)-t.window:]
	}
	t.scores[rec.Symbol] = scores
}

// DeliveryFailure reports an alert the notifier could not deliver.
type DeliveryFailure struct {
	Event domain.AlertEvent
	Err   error
}

// AlertDispatcher delivers alerts off the pipeline path. Dispatch never
// blocks; a full queue drops the event.
type AlertDispatcher struct {
	notifier ports.Notifier
	timeout  time.Duration
	logger   zerolog.Logger

	queue    chan domain.AlertEvent
	failures chan DeliveryFailure
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewAlertDispatcher starts the delivery worker. A nil notifier only logs.
func NewAlertDispatcher(notifier ports.Notifier, cfg config.AlertConfig, logger zerolog.Logger) *AlertDispatcher {
	size := max(1, cfg.QueueSize)
	d := &AlertDispatcher{
		notifier: notifier,
		timeout:  cfg.Timeout,
		logger:   logger,
		queue:    make(chan domain.AlertEvent, size),
		failures: make(chan DeliveryFailure, size),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch enqueues event and reports whether it was accepted.
func (d *AlertDispatcher) Dispatch(event domain.AlertEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.logger.Warn().
			Str("identity", event.Record.Identity).
			Str("symbol", event.Record.Symbol.String()).
			Str("reason", string(event.Reason)).
			Msg("alert queue full, dropping alert")
		return false
	}
}

// Failures exposes undelivered alerts. Reports are dropped when nobody reads;
// the channel is closed once the dispatcher has drained.
func (d *AlertDispatcher) Failures() <-chan DeliveryFailure {
	return d.failures
}

// Close stops accepting alerts and waits for queued ones to be attempted.
func (d *AlertDispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}

func (d *AlertDispatcher) loop() {
	defer close(d.done)
	defer close(d.failures)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *AlertDispatcher) deliver(event domain.AlertEvent) {
	log := d.logger.With().
		Str("identity", event.Record.Identity).
		Str("symbol", event.Record.Symbol.String()).
		Str("reason", string(event.Reason)).
		Float64("impact_score", event.Record.ImpactScore).
		Logger()

	if d.notifier == nil {
		log.Info().Msg("alert triggered")
		return
	}

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.notifier.Send(ctx, event); err != nil {
		log.Error().Err(err).Msg("alert delivery failed")
		select {
		case d.failures <- DeliveryFailure{Event: event, Err: err}:
		default:
		}
		return
	}
	log.Info().Msg("alert delivered")
}
