package models

import "time"

// MaxRunErrors bounds the number of errors retained on a RunResult so a bad
// run stays readable.
const MaxRunErrors = 50

// MaxRunSamples bounds the number of sample identifiers retained on a RunResult.
const MaxRunSamples = 10

// Scope restricts an enrichment pass. Zero values mean "no restriction".
type Scope struct {
	Source     string        `json:"source,omitempty"`
	PropertyID string        `json:"property_id,omitempty"`
	City       string        `json:"city,omitempty"`
	Postcodes  []string      `json:"postcodes,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	TimeBudget time.Duration `json:"time_budget,omitempty"`
}

// RunError is one non-fatal failure recorded during a pass.
type RunError struct {
	Unit    string    `json:"unit"` // scope unit, e.g. a postcode or source name
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RunResult summarises one enrichment pass.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Errors    []RunError    `json:"errors,omitempty"`
	Samples   []string      `json:"samples,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// AddError appends a run error, dropping it silently once the cap is reached.
func (r *RunResult) AddError(e RunError) {
	if len(r.Errors) >= MaxRunErrors {
		return
	}
	r.Errors = append(r.Errors, e)
}

// AddSample records an identifier for spot-checking, up to the cap.
func (r *RunResult) AddSample(id string) {
	if len(r.Samples) >= MaxRunSamples {
		return
	}
	r.Samples = append(r.Samples, id)
}
