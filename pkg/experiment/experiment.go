// Package experiment deterministically splits traffic between the AI path
// and the rule-based path. Assignment is a pure function of the experiment
// name and the subject: no stored assignment table, no randomness, stable
// across restarts and replicas.
package experiment

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// ErrUnknownExperiment is returned when assigning against an experiment
// that was never configured.
var ErrUnknownExperiment = errors.New("unknown experiment")

// Experiment is a named set of weighted variants. Variant order is part of
// the bucket layout: reordering variants reassigns subjects.
type Experiment struct {
	Name     string
	Variants []models.Variant
}

// Router assigns subjects to experiment variants.
type Router struct {
	list  []Experiment
	index map[string]int
}

// New validates the experiment definitions and builds a Router. Names must
// be unique, weights non-negative, and every experiment needs a positive
// total weight.
func New(experiments []Experiment) (*Router, error) {
	r := &Router{index: make(map[string]int, len(experiments))}
	for _, exp := range experiments {
		if exp.Name == "" {
			return nil, errors.New("experiment with empty name")
		}
		if _, dup := r.index[exp.Name]; dup {
			return nil, fmt.Errorf("experiment %q defined twice", exp.Name)
		}
		total := 0
		seen := make(map[string]bool, len(exp.Variants))
		for _, v := range exp.Variants {
			if v.Name == "" {
				return nil, fmt.Errorf("experiment %q: variant with empty name", exp.Name)
			}
			if seen[v.Name] {
				return nil, fmt.Errorf("experiment %q: variant %q defined twice", exp.Name, v.Name)
			}
			seen[v.Name] = true
			if v.Weight < 0 {
				return nil, fmt.Errorf("experiment %q: variant %q has negative weight", exp.Name, v.Name)
			}
			total += v.Weight
		}
		if total <= 0 {
			return nil, fmt.Errorf("experiment %q: total weight must be positive", exp.Name)
		}
		r.index[exp.Name] = len(r.list)
		r.list = append(r.list, exp)
	}
	return r, nil
}

// Assign buckets subject into a variant of the named experiment. Equal
// inputs always produce equal assignments.
func (r *Router) Assign(experiment, subject string) (models.Assignment, error) {
	i, ok := r.index[experiment]
	if !ok {
		return models.Assignment{}, fmt.Errorf("%w: %s", ErrUnknownExperiment, experiment)
	}
	exp := r.list[i]

	d := xxhash.New()
	_, _ = d.WriteString(experiment)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(subject)

	total := 0
	for _, v := range exp.Variants {
		total += v.Weight
	}
	bucket := int(d.Sum64() % uint64(total))
	for _, v := range exp.Variants {
		bucket -= v.Weight
		if bucket < 0 {
			return models.Assignment{
				Experiment: experiment,
				Subject:    subject,
				Variant:    v.Name,
				Upstream:   v.Upstream,
			}, nil
		}
	}
	// Unreachable: total weight is positive, so some variant absorbs the bucket.
	last := exp.Variants[len(exp.Variants)-1]
	return models.Assignment{
		Experiment: experiment,
		Subject:    subject,
		Variant:    last.Name,
		Upstream:   last.Upstream,
	}, nil
}

// List returns the configured experiments in configuration order.
func (r *Router) List() []Experiment {
	out := make([]Experiment, len(r.list))
	copy(out, r.list)
	return out
}
