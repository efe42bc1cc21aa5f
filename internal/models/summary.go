package models

import "time"

// RunSummary is the aggregate result of one traversal run.
// Counters are per outcome kind.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Root        string    `json:"root"`
	Term        string    `json:"term"`
	Workers     int       `json:"workers"`
	Matches     int       `json:"matches"`     // KindMatch outcomes
	Misses      int       `json:"misses"`      // KindNoMatch outcomes
	Directories int       `json:"directories"` // KindExpanded outcomes
	Skipped     int       `json:"skipped"`     // KindSkipped outcomes
	Unsupported int       `json:"unsupported"` // KindUnsupported outcomes
	Errors      int       `json:"errors"`      // KindError outcomes
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Aborted     bool      `json:"aborted"` // Run was cancelled before the tree was fully visited
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Searched returns the number of regular files read to a verdict.
func (s RunSummary) Searched() int {
	return s.Matches + s.Misses
}

// Add counts one outcome into the summary.
func (s *RunSummary) Add(o Outcome) {
	switch o.Kind {
	case KindMatch:
		s.Matches++
	case KindNoMatch:
		s.Misses++
	case KindExpanded:
		s.Directories++
	case KindSkipped:
		s.Skipped++
	case KindUnsupported:
		s.Unsupported++
	case KindError:
		s.Errors++
	}
}
