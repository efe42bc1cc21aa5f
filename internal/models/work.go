package models

import (
	"bytes"
	"time"
)

// Query is the search shared by every work item of one run.
// It is built once per run and never mutated afterwards; work items hold a
// pointer to it instead of a copy.
type Query struct {
	RunID     string    // Unique identifier of the run
	Root      string    // Root path the run started from
	Term      string    // Substring to look for
	StartedAt time.Time // When the run was started

	term []byte // Term as bytes, cached for line matching
}

// NewQuery builds the shared query for a run.
func NewQuery(runID, root, term string) *Query {
	return &Query{
		RunID:     runID,
		Root:      root,
		Term:      term,
		StartedAt: time.Now(),
		term:      []byte(term),
	}
}

// Matches reports whether line contains the search term.
func (q *Query) Matches(line []byte) bool {
	return bytes.Contains(line, q.term)
}

// WorkItem is one path awaiting classification by a worker.
// A work item is owned by exactly one of its creator, the work queue, or the
// worker that dequeued it.
type WorkItem struct {
	Path  string // Filesystem path to examine
	Query *Query // Shared, read-only query of the run

	stop bool // Sentinel telling a worker to exit
}

// NewWorkItem creates a work item for path within the given run.
func NewWorkItem(path string, q *Query) *WorkItem {
	return &WorkItem{Path: path, Query: q}
}

// NewStopItem creates a sentinel item that makes the worker receiving it exit.
func NewStopItem() *WorkItem {
	return &WorkItem{stop: true}
}

// IsStop reports whether the item is a stop sentinel.
func (w *WorkItem) IsStop() bool {
	return w.stop
}
