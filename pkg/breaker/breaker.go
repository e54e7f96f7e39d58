// Package breaker implements the circuit protecting the upstream. After a
// run of consecutive failures the circuit opens and upstream calls are
// skipped outright; once the cooldown passes, a single trial call probes the
// upstream, closing the circuit on success and reopening it on failure.
package breaker

import (
	"sync"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Breaker is a three-state circuit breaker. All methods are safe for
// concurrent use; in the half-open state at most one caller holds the trial
// slot at a time.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	cooldown      time.Duration
	state         models.BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool

	onTransition func(from, to models.BreakerState)
	now          func() time.Time
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

// WithOnTransition registers a callback invoked on every state change. It
// runs synchronously under the breaker's lock and must not call back into
// the Breaker.
func WithOnTransition(fn func(from, to models.BreakerState)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a closed Breaker that opens after threshold consecutive
// failures and probes again after cooldown.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     models.BreakerClosed,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether an upstream call may proceed. When the cooldown of
// an open circuit has elapsed, Allow moves it to half-open and grants the
// caller the single trial slot; every Allow that returns true must be
// matched by RecordSuccess, RecordFailure, or Release.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(models.BreakerHalfOpen)
		b.trialInFlight = true
		return true
	case models.BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess books a successful upstream call. It closes a half-open
// circuit and clears the consecutive-failure count. Results arriving after
// the circuit opened do not move it.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerHalfOpen:
		b.trialInFlight = false
		b.failures = 0
		b.transition(models.BreakerClosed)
	case models.BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure books a failed upstream call. Crossing the threshold in the
// closed state opens the circuit; a failed half-open trial reopens it and
// restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(models.BreakerOpen)
		}
	case models.BreakerHalfOpen:
		b.trialInFlight = false
		b.failures++
		b.openedAt = b.now()
		b.transition(models.BreakerOpen)
	}
}

// Release abandons a granted trial slot without recording an outcome, for
// callers that were allowed through but never attempted the call.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.state == models.BreakerHalfOpen {
		b.trialInFlight = false
	}
	b.mu.Unlock()
}

// Status returns a snapshot of the breaker.
func (b *Breaker) Status() models.BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := models.BreakerStatus{
		State:               b.state,
		ConsecutiveFailures: b.failures,
	}
	if b.state == models.BreakerOpen {
		st.OpenedAt = b.openedAt
		st.RetryAt = b.openedAt.Add(b.cooldown)
	}
	return st
}

// transition switches state and fires the callback. Callers hold mu.
func (b *Breaker) transition(to models.BreakerState) {
	from := b.state
	b.state = to
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
