package models

// Variant is one arm of an experiment.
type Variant struct {
	Name     string `json:"name" yaml:"name"`
	Weight   int    `json:"weight" yaml:"weight"`
	Upstream bool   `json:"upstream" yaml:"upstream"`
}

// Assignment is the deterministic result of bucketing a subject into an
// experiment variant. Equal inputs always produce equal assignments.
type Assignment struct {
	Experiment string `json:"experiment"`
	Subject    string `json:"subject"`
	Variant    string `json:"variant"`
	Upstream   bool   `json:"upstream"`
}
