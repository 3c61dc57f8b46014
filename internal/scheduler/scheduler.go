// Package scheduler triggers sync cycles periodically and on demand.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/retrypolicy"
)

// Runner runs one sync cycle.
type Runner interface {
	RunSyncCycle(ctx context.Context) (model.CycleResult, error)
}

// Config controls when cycles run.
type Config struct {
	Interval      time.Duration      // time between periodic cycles
	JitterPercent uint64             // +/- spread applied to Interval
	RunOnStart    bool               // run a cycle as soon as Run starts
	Retry         retrypolicy.Policy // backoff after a failed or pending cycle
}

var errPending = errors.New("sync pending")

// Scheduler runs cycles until its context is cancelled.
type Scheduler struct {
	runner  Runner
	cfg     Config
	log     *zap.Logger
	trigger chan struct{}
	onCycle func(model.CycleResult, error)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithResultHook observes the result of every cycle attempt.
func WithResultHook(fn func(model.CycleResult, error)) Option {
	return func(s *Scheduler) { s.onCycle = fn }
}

// New builds a scheduler.
func New(runner Runner, cfg Config, log *zap.Logger, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retrypolicy.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{runner: runner, cfg: cfg, log: log, trigger: make(chan struct{}, 1)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Trigger requests a cycle. Requests made while one is pending coalesce.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticks := retry.NewConstant(s.cfg.Interval)
	if s.cfg.JitterPercent > 0 {
		ticks = retry.WithJitterPercent(s.cfg.JitterPercent, ticks)
	}
	s.log.Info("sync scheduler started", zap.Duration("interval", s.cfg.Interval))

	if s.cfg.RunOnStart {
		s.cycle(ctx)
	}
	for {
		next, _ := ticks.Next()
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("sync scheduler stopped")
			return ctx.Err()
		case <-s.trigger:
			timer.Stop()
		case <-timer.C:
		}
		s.cycle(ctx)
	}
}

// cycle runs one cycle and retries it with backoff while it fails or
// leaves records pending. Authentication failures are not retried.
func (s *Scheduler) cycle(ctx context.Context) {
	err := retry.Do(ctx, s.cfg.Retry.Backoff(), func(ctx context.Context) error {
		res, err := s.runner.RunSyncCycle(ctx)
		if s.onCycle != nil {
			s.onCycle(res, err)
		}
		switch res.Status {
		case model.StatusComplete, model.StatusCoalesced:
			return nil
		case model.StatusCancelled:
			return err
		case model.StatusPending:
			return retry.RetryableError(errPending)
		}
		if errs.KindOf(err) == errs.Authentication {
			return err
		}
		return retry.RetryableError(err)
	})
	switch {
	case err == nil || ctx.Err() != nil:
	case errors.Is(err, errPending):
		s.log.Info("sync pending after retries")
	case errs.KindOf(err) == errs.Authentication:
		s.log.Error("sync needs sign-in", logging.ErrorFields(err)...)
	default:
		s.log.Warn("sync failed after retries", logging.ErrorFields(err)...)
	}
}
