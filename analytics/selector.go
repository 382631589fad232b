package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"pushlytics/api/logging"
	"pushlytics/api/store"
)

// ErrAllBackendsFailed is returned by a Selector when no backend could serve.
var ErrAllBackendsFailed = errors.New("all analytics backends failed")

// BackendSet is the pair of event stores an engine reads from. Fallback may be nil.
type BackendSet struct {
	Primary  store.EventStore
	Fallback store.EventStore
}

// Operation is one logical analysis step run against a single backend. It must
// be safe to run again on another backend after a failure.
type Operation func(ctx context.Context, s store.EventStore) error

// Selector runs an operation on the first backend that can serve it and
// reports which backend did.
type Selector interface {
	Run(ctx context.Context, kind AnalysisKind, op Operation) (string, error)
}

// SelectorConfig tunes the primary-backend guard.
type SelectorConfig struct {
	// PrimaryTimeout bounds each primary attempt. Zero disables the deadline.
	PrimaryTimeout time.Duration
	// FailureThreshold is the number of consecutive primary failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		PrimaryTimeout:   10 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// FallbackSelector tries the primary backend first and, on any error, retries
// the same operation on the fallback. An open breaker skips the primary.
type FallbackSelector struct {
	set     BackendSet
	cfg     SelectorConfig
	sink    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewFallbackSelector(set BackendSet, cfg SelectorConfig, sink Sink) *FallbackSelector {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultSelectorConfig().FailureThreshold
	}
	s := &FallbackSelector{set: set, cfg: cfg, sink: sink}

	name := "primary"
	if set.Primary != nil {
		name = set.Primary.Name()
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller that went away says nothing about backend health.
		IsSuccessful: func(err error) bool {
			var done *callerDoneError
			return err == nil || errors.As(err, &done)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("backend", name).Str("from", from.String()).Str("to", to.String()).Msg("analytics backend breaker state changed")
			s.sink.BreakerStateChanged(name, from.String(), to.String())
		},
	})
	return s
}

// BreakerState reports the primary breaker state, for health checks.
func (s *FallbackSelector) BreakerState() string {
	return s.breaker.State().String()
}

func (s *FallbackSelector) Run(ctx context.Context, kind AnalysisKind, op Operation) (string, error) {
	if s.set.Primary == nil && s.set.Fallback == nil {
		return "", fmt.Errorf("%w: no backend configured", ErrAllBackendsFailed)
	}

	var primaryErr error
	if s.set.Primary != nil {
		_, primaryErr = s.breaker.Execute(func() (struct{}, error) {
			err := s.runPrimary(ctx, op)
			if err != nil && ctx.Err() != nil {
				return struct{}{}, &callerDoneError{err: err}
			}
			return struct{}{}, err
		})
		if primaryErr == nil {
			return s.set.Primary.Name(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if s.set.Fallback == nil {
		return "", fmt.Errorf("%w: %s: %w", ErrAllBackendsFailed, s.set.Primary.Name(), primaryErr)
	}

	if primaryErr != nil {
		logging.Ctx(ctx).Warn().Err(primaryErr).
			Str("kind", string(kind)).
			Str("from", s.set.Primary.Name()).
			Str("to", s.set.Fallback.Name()).
			Msg("primary analytics backend failed, retrying on fallback")
		s.sink.BackendFallback(ctx, kind, s.set.Primary.Name(), s.set.Fallback.Name(), primaryErr)
	}

	if err := op(ctx, s.set.Fallback); err != nil {
		if primaryErr != nil {
			return "", fmt.Errorf("%w: %s: %w; %s: %w", ErrAllBackendsFailed,
				s.set.Primary.Name(), primaryErr, s.set.Fallback.Name(), err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrAllBackendsFailed, s.set.Fallback.Name(), err)
	}
	return s.set.Fallback.Name(), nil
}

// callerDoneError marks a primary failure that happened after the caller's own
// context ended, whether canceled or past its deadline.
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

func (s *FallbackSelector) runPrimary(ctx context.Context, op Operation) error {
	if s.cfg.PrimaryTimeout <= 0 {
		return op(ctx, s.set.Primary)
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PrimaryTimeout)
	defer cancel()
	return op(pctx, s.set.Primary)
}
