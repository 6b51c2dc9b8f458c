// File: internal/engine/engine.go

// Package engine orchestrates the run: for each attempt it walks the
// authentication strategy chain, invokes the action and classifies the
// outcome. Attempts repeat up to the retry budget with a fixed sleep between
// failures; every attempt starts from a fresh session.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/auth"
	"github.com/xkilldash9x/checkin-cli/internal/classify"
	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/invoke"
)

// ActionInvoker is the slice of the invoker the engine needs; tests
// substitute a fake.
type ActionInvoker interface {
	Invoke(ctx context.Context, session *auth.Session) (invoke.Result, classify.Verdict, error)
}

// StrategyFactory returns a fresh strategy chain for one attempt.
type StrategyFactory func() []auth.Strategy

// Attempt records what happened during one attempt, for diagnostics and the
// final notification.
type Attempt struct {
	Number    int
	Strategy  string
	SessionID string
	Result    invoke.Result
	Verdict   classify.Verdict
	Err       error
	Duration  time.Duration
}

// Outcome is the final result of a run.
type Outcome struct {
	Success  bool
	Attempts int
	Last     *Attempt
}

// Engine drives the attempt loop.
type Engine struct {
	cfg           *config.Config
	logger        *zap.Logger
	newStrategies StrategyFactory
	invoker       ActionInvoker

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the engine.
func New(cfg *config.Config, logger *zap.Logger, factory StrategyFactory, invoker ActionInvoker) *Engine {
	return &Engine{
		cfg:           cfg,
		logger:        logger.Named("engine"),
		newStrategies: factory,
		invoker:       invoker,
		sleep:         sleepCtx,
	}
}

// Run executes up to 1+budget attempts and returns the outcome. The returned
// error is non-nil only when the run was cut short by the context.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	maxAttempts := 1 + e.cfg.Retry.Budget
	outcome := &Outcome{}

	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		attempt := e.runAttempt(ctx, n)
		outcome.Attempts = n
		outcome.Last = attempt

		if attempt.Err == nil {
			outcome.Success = true
			e.logger.Info("Check-in succeeded",
				zap.Int("attempt", n),
				zap.String("strategy", attempt.Strategy),
				zap.String("tier", attempt.Verdict.Tier),
			)
			return outcome, nil
		}

		e.logger.Warn("Attempt failed",
			zap.Int("attempt", n),
			zap.Int("remaining", maxAttempts-n),
			zap.Error(attempt.Err),
		)
		if n < maxAttempts {
			if err := e.sleep(ctx, e.cfg.Retry.Interval()); err != nil {
				return outcome, err
			}
		}
	}
	return outcome, nil
}

// runAttempt walks the strategy chain once. A strategy that logs in but
// whose action fails hands over to the next strategy in the chain.
func (e *Engine) runAttempt(ctx context.Context, number int) *Attempt {
	started := time.Now()
	attempt := &Attempt{Number: number}

	var errs []error
	for _, strategy := range e.newStrategies() {
		attempt.Strategy = strategy.Name()
		e.logger.Info("Authenticating", zap.Int("attempt", number), zap.String("strategy", strategy.Name()))

		session, err := strategy.Login(ctx)
		if err != nil {
			e.logger.Warn("Authentication failed", zap.String("strategy", strategy.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		attempt.SessionID = session.ID

		result, verdict, err := e.invoker.Invoke(ctx, session)
		session.Release()

		attempt.Result = result
		attempt.Verdict = verdict
		if err == nil {
			attempt.Err = nil
			attempt.Duration = time.Since(started)
			return attempt
		}
		errs = append(errs, err)
	}

	attempt.Err = errors.Join(errs...)
	if attempt.Err == nil {
		attempt.Err = errors.New("no authentication strategy configured")
	}
	attempt.Duration = time.Since(started)
	return attempt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
