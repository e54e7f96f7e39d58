package meter

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

func TestCanAdmitWithinLimit(t *testing.T) {
	m := New(models.BudgetDaily, 5.0)

	if !m.CanAdmit(0.02) {
		t.Error("expected admission under limit")
	}
	m.Record(0.02)
	if !m.CanAdmit(0.02) {
		t.Error("expected admission with room to spare")
	}
}

func TestCanAdmitBoundaryIsInclusive(t *testing.T) {
	m := New(models.BudgetDaily, 0.05)

	m.Record(0.02)
	m.Record(0.01)
	// 0.03 spent; an estimate landing exactly on the ceiling is admitted.
	if !m.CanAdmit(0.02) {
		t.Error("expected estimate reaching the ceiling exactly to be admitted")
	}

	m.Record(0.02)
	// 0.05 spent; any further estimate overshoots.
	if m.CanAdmit(0.02) {
		t.Error("expected rejection at ceiling")
	}
	if m.CanAdmit(0.001) {
		t.Error("expected rejection of any estimate at ceiling")
	}
}

func TestRejectSequenceAtCeiling(t *testing.T) {
	m := New(models.BudgetDaily, 0.05)

	if !m.CanAdmit(0.02) {
		t.Error("expected first admission")
	}
	m.Record(0.02)
	if !m.CanAdmit(0.02) {
		t.Error("expected second admission")
	}
	m.Record(0.02)

	// 0.04 spent, estimate 0.02 would reach 0.06.
	if m.CanAdmit(0.02) {
		t.Error("expected rejection when estimate overshoots limit")
	}
}

func TestRecordOvershootTightensFutureAdmissions(t *testing.T) {
	m := New(models.BudgetDaily, 0.05)

	if !m.CanAdmit(0.02) {
		t.Error("expected admission")
	}
	m.Record(0.09) // actual far above the estimate

	if m.CanAdmit(0.01) {
		t.Error("expected rejection after overshoot")
	}
	st := m.Status()
	if math.Abs(st.SpentUSD-0.09) > 1e-9 {
		t.Errorf("expected 0.09 spent, got %v", st.SpentUSD)
	}
	if st.RemainingUSD != 0 {
		t.Errorf("expected remaining floored at zero, got %v", st.RemainingUSD)
	}
}

func TestWindowResetOnBoundary(t *testing.T) {
	clock := time.Date(2026, 3, 14, 23, 50, 0, 0, time.UTC)
	m := New(models.BudgetDaily, 0.05)
	m.now = func() time.Time { return clock }
	m.windowStart = WindowStart(models.BudgetDaily, clock)

	m.Record(0.05)
	if m.CanAdmit(0.01) {
		t.Error("expected rejection at ceiling before midnight")
	}

	clock = clock.Add(20 * time.Minute) // crosses midnight UTC

	if !m.CanAdmit(0.01) {
		t.Error("expected spend to reset in the new window")
	}
	st := m.Status()
	if st.SpentUSD != 0 {
		t.Errorf("expected zero spend after reset, got %v", st.SpentUSD)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !st.WindowStart.Equal(want) {
		t.Errorf("expected window start %v, got %v", want, st.WindowStart)
	}

	// The reset happened exactly once: new spend accumulates normally.
	m.Record(0.02)
	m.Record(0.02)
	if got := m.Status().SpentUSD; math.Abs(got-0.04) > 1e-9 {
		t.Errorf("expected 0.04 spent after reset, got %v", got)
	}
}

func TestMonthlyWindowStart(t *testing.T) {
	now := time.Date(2026, 8, 21, 15, 4, 5, 0, time.UTC)
	if got := WindowStart(models.BudgetMonthly, now); !got.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected monthly window start: %v", got)
	}
	if got := WindowStart(models.BudgetDaily, now); !got.Equal(time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected daily window start: %v", got)
	}
}

func TestWithSpentSeedsWindow(t *testing.T) {
	m := New(models.BudgetDaily, 5.0, WithSpent(4.99))

	if m.CanAdmit(0.02) {
		t.Error("expected rejection against seeded spend")
	}
	if !m.CanAdmit(0.01) {
		t.Error("expected admission within seeded remainder")
	}
	if got := m.Status().SpentUSD; math.Abs(got-4.99) > 1e-9 {
		t.Errorf("expected 4.99 seeded, got %v", got)
	}
}

func TestZeroLimitMeansNoCeiling(t *testing.T) {
	m := New(models.BudgetDaily, 0)

	m.Record(1000)
	if !m.CanAdmit(1000) {
		t.Error("expected zero limit to admit everything")
	}
}

func TestConcurrentRecord(t *testing.T) {
	m := New(models.BudgetDaily, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CanAdmit(0.01)
			m.Record(0.01)
		}()
	}
	wg.Wait()

	if got := m.Status().SpentUSD; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5 spent, got %v", got)
	}
}
