// Package resilience keeps an unhealthy backend out of the request path.
//
// A [Breaker] counts consecutive failures of one backend and, once tripped,
// rejects calls for a cooldown period before letting a single probe through.
// A [Failover] orders several backends of the same kind, each behind its own
// breaker, and [Call] walks them until one answers. [LLM], [STT] and [TTS]
// adapt a Failover to the provider interfaces.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Allow] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: backend cooling down")

// State is the position of a [Breaker].
type State uint8

const (
	Closed State = iota
	Open
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	}
	return "invalid"
}

// BreakerSettings tunes a [Breaker]. Zero fields take the defaults noted.
type BreakerSettings struct {
	// Trip is the number of consecutive failures that open the breaker.
	// Default 3.
	Trip int

	// Cooldown is how long an open breaker rejects calls. Default 30s.
	Cooldown time.Duration

	// Probes is the number of successful probe calls that close the
	// breaker again. Only one probe is in flight at a time. Default 1.
	Probes int

	// Counts reports whether err says something about the backend's health.
	// Default [HealthError].
	Counts func(err error) bool

	// OnChange is called with the breaker's mutex held whenever the state
	// changes. Default logs the transition.
	OnChange func(name string, from, to State)
}

// HealthError is the default failure classifier: every error except a call
// abandoned by its caller.
func HealthError(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func logChange(name string, from, to State) {
	level := slog.LevelInfo
	if to == Open {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "backend breaker changed state",
		"backend", name, "from", from.String(), "to", to.String())
}

// Breaker guards one backend. It is safe for concurrent use.
type Breaker struct {
	name string
	set  BreakerSettings
	now  func() time.Time

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
	probing  bool
	passed   int
}

// NewBreaker returns a closed breaker for the backend called name.
func NewBreaker(name string, set BreakerSettings) *Breaker {
	if set.Trip <= 0 {
		set.Trip = 3
	}
	if set.Cooldown <= 0 {
		set.Cooldown = 30 * time.Second
	}
	if set.Probes <= 0 {
		set.Probes = 1
	}
	if set.Counts == nil {
		set.Counts = HealthError
	}
	if set.OnChange == nil {
		set.OnChange = logChange
	}
	return &Breaker{name: name, set: set, now: time.Now}
}

// Name returns the backend name the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. An open breaker whose cooldown has
// passed reports [Probing]; the switch itself happens on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cooled() {
		return Probing
	}
	return b.state
}

// Allow reserves one call. On success the caller must report the call's
// outcome through done exactly once. It returns [ErrOpen] during the
// cooldown and while another probe is in flight.
func (b *Breaker) Allow() (done func(error), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if !b.cooled() {
			return nil, ErrOpen
		}
		b.move(Probing)
		b.passed = 0
		fallthrough
	case Probing:
		if b.probing {
			return nil, ErrOpen
		}
		b.probing = true
		return b.finishProbe, nil
	}
	return b.finish, nil
}

func (b *Breaker) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set.Counts(err) {
		if err == nil {
			b.fails = 0
		}
		return
	}
	b.fails++
	if b.state == Closed && b.fails >= b.set.Trip {
		b.trip()
	}
}

func (b *Breaker) finishProbe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch {
	case err == nil:
		b.passed++
		if b.passed >= b.set.Probes {
			b.fails = 0
			b.move(Closed)
		}
	case b.set.Counts(err):
		b.trip()
	}
}

// trip opens the breaker. Callers hold b.mu.
func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.move(Open)
}

// move changes state and reports it. Callers hold b.mu.
func (b *Breaker) move(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.set.OnChange(b.name, from, to)
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.set.Cooldown
}
