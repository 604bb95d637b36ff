// Package breaker provides named per-operation circuit breakers for the
// Generator adapter, per spec.md §5's
// resilience model. Built directly as an explicit, constructed service
// (REDESIGN FLAGS: "process-wide circuit state" should be encapsulated,
// not a package-level map) rather than adopting a third-party circuit
// breaker library — none appears anywhere in the example pack, and the
// state machine spec.md asks for (closed/open/half-open, trip after N
// consecutive failures, cool down, one trial call) is small enough that
// reaching for an external dependency here would not be grounded in
// anything the corpus actually shows.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call when the breaker is open and the cooldown
// has not yet elapsed.
var ErrCircuitOpen = errors.New("breaker: circuit open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
)

// breakerState is one named circuit's mutable state.
type breakerState struct {
	mu            sync.Mutex
	state         state
	consecutive   int
	openedAt      time.Time
	failThreshold int
	cooldown      time.Duration
}

// Breakers is a registry of named circuit breakers, one per operation
// (e.g. "generator.GenerateVariant", "federation.push:<peer>").
type Breakers struct {
	mu            sync.Mutex
	byName        map[string]*breakerState
	failThreshold int
	cooldown      time.Duration
}

// New builds a Breakers registry. failThreshold and cooldown apply to
// every breaker it creates; zero values fall back to the defaults (5
// consecutive failures, 60s cooldown).
func New(failThreshold int, cooldown time.Duration) *Breakers {
	if failThreshold <= 0 {
		failThreshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breakers{byName: make(map[string]*breakerState), failThreshold: failThreshold, cooldown: cooldown}
}

func (b *Breakers) get(name string) *breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.byName[name]
	if !ok {
		bs = &breakerState{failThreshold: b.failThreshold, cooldown: b.cooldown}
		b.byName[name] = bs
	}
	return bs
}

// Call runs fn through the named breaker. If the breaker is open and the
// cooldown has not elapsed, fn is not invoked and ErrCircuitOpen is returned. A
// trial call is allowed once the cooldown elapses (half-open); its
// outcome closes or re-opens the breaker.
func (b *Breakers) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	bs := b.get(name)

	bs.mu.Lock()
	if bs.state == stateOpen {
		if time.Since(bs.openedAt) < bs.cooldown {
			bs.mu.Unlock()
			return ErrCircuitOpen
		}
		bs.state = stateHalfOpen
	}
	bs.mu.Unlock()

	err := fn(ctx)

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if err != nil {
		bs.consecutive++
		if bs.state == stateHalfOpen || bs.consecutive >= bs.failThreshold {
			bs.state = stateOpen
			bs.openedAt = time.Now()
		}
		return err
	}

	bs.consecutive = 0
	bs.state = stateClosed
	return nil
}

// Status reports whether name's breaker is currently open.
func (b *Breakers) Status(name string) (open bool, consecutiveFailures int) {
	bs := b.get(name)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.state == stateOpen, bs.consecutive
}

// Reset clears a named breaker back to closed, for tests and operator
// recovery actions.
func (b *Breakers) Reset(name string) {
	bs := b.get(name)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.state = stateClosed
	bs.consecutive = 0
}
