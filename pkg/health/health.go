package health

import (
	"context"
	"time"
)

// Result represents the outcome of a single dependency probe
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// Checker is the interface all dependency probes implement
type Checker interface {
	// Name identifies the dependency in readiness reports
	Name() string

	// Check performs the probe and returns the result
	Check(ctx context.Context) Result
}

// Set is an ordered group of checkers probed together for readiness
type Set struct {
	timeout  time.Duration
	checkers []Checker
}

// NewSet groups checkers under a shared per-probe timeout
func NewSet(timeout time.Duration, checkers ...Checker) *Set {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Set{timeout: timeout, checkers: checkers}
}

// Add appends a checker to the set
func (s *Set) Add(c Checker) {
	s.checkers = append(s.checkers, c)
}

// Run probes every checker in order and returns results keyed by name.
// Each probe gets its own timeout so one hung dependency cannot eat
// the whole readiness budget.
func (s *Set) Run(ctx context.Context) map[string]Result {
	results := make(map[string]Result, len(s.checkers))
	for _, c := range s.checkers {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		results[c.Name()] = c.Check(cctx)
		cancel()
	}
	return results
}

// Healthy reports whether every result passed
func Healthy(results map[string]Result) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// result stamps a probe outcome with its timing
func result(start time.Time, healthy bool, message string) Result {
	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
