package experiment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

func newTestRouter(t *testing.T, experiments ...Experiment) *Router {
	t.Helper()
	r, err := New(experiments)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func abSplit(aWeight, bWeight int) Experiment {
	return Experiment{
		Name: "topics-rollout",
		Variants: []models.Variant{
			{Name: "ai", Weight: aWeight, Upstream: true},
			{Name: "control", Weight: bWeight},
		},
	}
}

func TestAssignDeterministic(t *testing.T) {
	r := newTestRouter(t, abSplit(50, 50))

	first, err := r.Assign("topics-rollout", "user-42")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		again, err := r.Assign("topics-rollout", "user-42")
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("assignment changed between calls: %+v vs %+v", first, again)
		}
	}

	// A second router built from the same definitions agrees.
	other := newTestRouter(t, abSplit(50, 50))
	again, err := other.Assign("topics-rollout", "user-42")
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Errorf("assignment differs across router instances: %+v vs %+v", first, again)
	}
}

func TestAssignDistributionTracksWeights(t *testing.T) {
	cases := []struct {
		name     string
		aWeight  int
		bWeight  int
		minShare float64
		maxShare float64
	}{
		{"even", 50, 50, 0.40, 0.60},
		{"skewed", 90, 10, 0.85, 0.95},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, abSplit(tc.aWeight, tc.bWeight))

			const n = 2000
			var ai int
			for i := 0; i < n; i++ {
				a, err := r.Assign("topics-rollout", fmt.Sprintf("subject-%d", i))
				if err != nil {
					t.Fatal(err)
				}
				if a.Variant == "ai" {
					ai++
				}
			}
			share := float64(ai) / n
			if share < tc.minShare || share > tc.maxShare {
				t.Errorf("expected ai share in [%v, %v], got %v", tc.minShare, tc.maxShare, share)
			}
		})
	}
}

func TestAssignIndependentAcrossExperiments(t *testing.T) {
	outline := abSplit(50, 50)
	outline.Name = "outline-rollout"
	r := newTestRouter(t, abSplit(50, 50), outline)

	differs := false
	for i := 0; i < 200; i++ {
		subject := fmt.Sprintf("subject-%d", i)
		a, err := r.Assign("topics-rollout", subject)
		if err != nil {
			t.Fatal(err)
		}
		b, err := r.Assign("outline-rollout", subject)
		if err != nil {
			t.Fatal(err)
		}
		if a.Variant != b.Variant {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("expected experiments to bucket independently")
	}
}

func TestAssignUnknownExperiment(t *testing.T) {
	r := newTestRouter(t, abSplit(50, 50))

	_, err := r.Assign("nope", "user-1")
	if !errors.Is(err, ErrUnknownExperiment) {
		t.Errorf("expected ErrUnknownExperiment, got %v", err)
	}
}

func TestZeroWeightVariantNeverChosen(t *testing.T) {
	r := newTestRouter(t, Experiment{
		Name: "dark-launch",
		Variants: []models.Variant{
			{Name: "on", Weight: 1, Upstream: true},
			{Name: "off", Weight: 0},
		},
	})

	for i := 0; i < 500; i++ {
		a, err := r.Assign("dark-launch", fmt.Sprintf("s-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if a.Variant != "on" {
			t.Fatalf("zero-weight variant chosen for subject s-%d", i)
		}
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		exps []Experiment
	}{
		{"empty name", []Experiment{{Variants: []models.Variant{{Name: "a", Weight: 1}}}}},
		{"duplicate experiment", []Experiment{abSplit(1, 1), abSplit(1, 1)}},
		{"empty variant name", []Experiment{{Name: "x", Variants: []models.Variant{{Weight: 1}}}}},
		{"duplicate variant", []Experiment{{Name: "x", Variants: []models.Variant{
			{Name: "a", Weight: 1}, {Name: "a", Weight: 1},
		}}}},
		{"negative weight", []Experiment{{Name: "x", Variants: []models.Variant{{Name: "a", Weight: -1}}}}},
		{"zero total", []Experiment{{Name: "x", Variants: []models.Variant{{Name: "a", Weight: 0}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.exps); err == nil {
				t.Error("expected error")
			}
		})
	}
}
