package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/portalvoice/internal/observe"
)

// ErrExhausted is returned by [Call] when no backend produced a result.
var ErrExhausted = errors.New("resilience: every backend failed")

type backend[T any] struct {
	impl    T
	breaker *Breaker
}

// Failover is an ordered list of interchangeable backends. The first one
// added is preferred. Build it fully before sharing it between goroutines.
type Failover[T any] struct {
	set      BreakerSettings
	backends []backend[T]
}

// NewFailover returns an empty Failover whose breakers use set.
func NewFailover[T any](set BreakerSettings) *Failover[T] {
	return &Failover[T]{set: set}
}

// Add appends impl under name and returns f.
func (f *Failover[T]) Add(name string, impl T) *Failover[T] {
	f.backends = append(f.backends, backend[T]{impl: impl, breaker: NewBreaker(name, f.set)})
	return f
}

// Len returns the number of backends.
func (f *Failover[T]) Len() int { return len(f.backends) }

// Breaker returns the breaker of the i-th backend.
func (f *Failover[T]) Breaker(i int) *Breaker { return f.backends[i].breaker }

// Each calls fn with every backend in order.
func (f *Failover[T]) Each(fn func(name string, impl T)) {
	for _, b := range f.backends {
		fn(b.breaker.Name(), b.impl)
	}
}

// Call runs fn against the backends of f in order and returns the first
// result without error. Backends whose breaker is open are skipped. The walk
// stops early once ctx is done or fn reports context.Canceled. When nothing
// succeeds the error wraps [ErrExhausted] and each backend's failure.
func Call[T, R any](ctx context.Context, f *Failover[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	log := observe.Logger(ctx)
	for _, b := range f.backends {
		done, err := b.breaker.Allow()
		if err != nil {
			log.Debug("backend skipped", "backend", b.breaker.Name(), "state", b.breaker.State().String())
			errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), err))
			continue
		}

		res, err := fn(b.impl)
		done(err)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), err))
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return zero, errors.Join(errs...)
		}
		log.Warn("backend failed, trying the next one", "backend", b.breaker.Name(), "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}
