package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dmehra2102/bookstore/pkg/metrics"
)

type Config struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenMax      uint32
}

func DefaultConfig() Config {
	return Config{FailureThreshold: 5, OpenTimeout: 30 * time.Second, HalfOpenMax: 3}
}

// Registry hands out one breaker per downstream name.
type Registry struct {
	log     *slog.Logger
	metrics *metrics.BreakerMetrics
	cfg     Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewRegistry(log *slog.Logger, m *metrics.BreakerMetrics, cfg Config) *Registry {
	return &Registry{log: log, metrics: m, cfg: cfg, breakers: map[string]*gobreaker.CircuitBreaker[any]{}}
}

func (r *Registry) get(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	threshold := r.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: r.cfg.HalfOpenMax,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not the downstream's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			if r.metrics != nil {
				r.metrics.State.WithLabelValues(name).Set(stateValue(to))
			}
		},
	})
	if r.metrics != nil {
		r.metrics.State.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	}
	r.breakers[name] = cb
	return cb
}

func (r *Registry) State(name string) gobreaker.State {
	return r.get(name).State()
}

// Call runs fn through the named breaker. Any failure, including a rejected
// call while the breaker is open, is answered by fallback.
func Call[T any](ctx context.Context, r *Registry, name string, fn func(context.Context) (T, error), fallback func(error) (T, error)) (T, error) {
	res, err := r.get(name).Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == nil {
		return res.(T), nil
	}

	open := errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
	r.log.Warn("downstream call failed, using fallback", "name", name, "breaker_open", open, "err", err)
	if r.metrics != nil {
		r.metrics.Fallbacks.WithLabelValues(name).Inc()
	}
	return fallback(err)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
