package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"FinNewsAgent/internal/ports"
)

// CronScheduler runs a job every interval on robfig/cron. A tick that fires
// while the previous run is still going is skipped.
type CronScheduler struct {
	interval time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler with a fixed interval.
func NewCronScheduler(interval time.Duration, logger zerolog.Logger) *CronScheduler {
	return &CronScheduler{interval: interval, logger: logger}
}

// Spec returns the cron expression used for the interval.
func (c *CronScheduler) Spec() string {
	return "@every " + c.interval.String()
}

// Start registers job and begins ticking. The first run happens one interval
// after Start; ctx cancellation stops the scheduler.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("cron job is nil")
	}
	if c.interval <= 0 {
		return fmt.Errorf("invalid interval %s", c.interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := cronLogger{logger: c.logger}
	cr := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(c.Spec(), func() { job(time.Now()) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.Spec(), err)
	}
	cr.Start()
	c.cron = cr

	c.logger.Info().Str("spec", c.Spec()).Msg("cron started")

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop halts the scheduler and waits for a running job until ctx is done.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		c.logger.Info().Msg("cron stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
