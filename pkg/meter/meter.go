// Package meter enforces the spend ceiling for upstream calls. Admission is
// two-phase: CanAdmit guards with the configured estimate before a call, and
// Record books the actual billed cost after it. Actuals may overshoot the
// ceiling; overshoot only tightens future admissions, it is never an error.
package meter

import (
	"sync"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Meter tracks spend against a limit inside a calendar-aligned UTC window.
// A limit <= 0 means no ceiling.
type Meter struct {
	mu          sync.Mutex
	window      models.BudgetWindow
	limitUSD    float64
	windowStart time.Time
	spentUSD    float64

	now func() time.Time
}

// Option configures a Meter at construction.
type Option func(*Meter)

// WithSpent seeds the current window, typically from the spend ledger, so a
// restart does not forget money already spent today.
func WithSpent(usd float64) Option {
	return func(m *Meter) { m.spentUSD = usd }
}

// New creates a Meter for the given window and ceiling.
func New(window models.BudgetWindow, limitUSD float64, opts ...Option) *Meter {
	m := &Meter{window: window, limitUSD: limitUSD, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.windowStart = WindowStart(window, m.now())
	return m
}

// CanAdmit reports whether an upstream call with the given estimated cost
// fits the ceiling. Crossing a window boundary resets spend first, exactly
// once per boundary.
func (m *Meter) CanAdmit(estimatedUSD float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll()
	if m.limitUSD <= 0 {
		return true
	}
	return m.spentUSD+estimatedUSD <= m.limitUSD
}

// Record books the actual billed cost of a completed upstream call. The
// actual may differ from the estimate used at admission.
func (m *Meter) Record(actualUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll()
	m.spentUSD += actualUSD
}

// Status reports the window, ceiling, and spend so far.
func (m *Meter) Status() models.BudgetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll()

	remaining := m.limitUSD - m.spentUSD
	if remaining < 0 {
		remaining = 0
	}
	return models.BudgetStatus{
		Window:       m.window,
		WindowStart:  m.windowStart,
		LimitUSD:     m.limitUSD,
		SpentUSD:     m.spentUSD,
		RemainingUSD: remaining,
	}
}

// roll resets spend when the clock has crossed into a new window. Callers
// hold mu.
func (m *Meter) roll() {
	start := WindowStart(m.window, m.now())
	if start.After(m.windowStart) {
		m.windowStart = start
		m.spentUSD = 0
	}
}

// WindowStart returns the UTC start of the window containing now.
func WindowStart(window models.BudgetWindow, now time.Time) time.Time {
	now = now.UTC()
	switch window {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
