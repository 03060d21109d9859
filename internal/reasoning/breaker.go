package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/metrics"
)

// BreakerConfig configures the circuit breaker around the reasoning engine.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxFailures is the number of consecutive failed calls that opens the breaker.
	// Zero disables the breaker.
	MaxFailures uint32

	// Cooldown is how long the breaker stays open before letting a probe through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used when nothing is configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "reasoning",
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// Breaker wraps a Reasoner with a circuit breaker. While open, calls fail
// immediately with ErrReasoningUnavailable and nothing is sent to the engine.
// The breaker never retries a call.
type Breaker struct {
	next    Reasoner
	cb      *gobreaker.CircuitBreaker
	metrics metrics.Collector
	logger  zerolog.Logger
}

// NewBreaker wraps next. A nil collector records nothing.
func NewBreaker(next Reasoner, cfg BreakerConfig, m metrics.Collector, log zerolog.Logger) *Breaker {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}

	b := &Breaker{
		next:    next,
		metrics: m,
		logger:  log.With().Str("component", "breaker").Str("breaker", cfg.Name).Logger(),
	}

	maxFailures := cfg.MaxFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Cancellation by the caller says nothing about the engine's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")

			var state metrics.BreakerState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.BreakerClosed
			case gobreaker.StateHalfOpen:
				state = metrics.BreakerHalfOpen
			case gobreaker.StateOpen:
				state = metrics.BreakerOpen
			}
			b.metrics.RecordBreakerState(name, state)
		},
	}

	if maxFailures > 0 {
		b.cb = gobreaker.NewCircuitBreaker(settings)
	}

	return b
}

// Complete forwards req unless the breaker is open.
func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	if b.cb == nil {
		return b.next.Complete(ctx, req)
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Warn().Object("request", req).Msg("circuit breaker open - request rejected")
			return "", fmt.Errorf("Breaker.Complete: %w: %v", domain.ErrReasoningUnavailable, err)
		}
		return "", err
	}

	return result.(string), nil
}

// State returns the breaker state for health reporting.
func (b *Breaker) State() metrics.BreakerState {
	if b.cb == nil {
		return metrics.BreakerClosed
	}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
