package models

import (
	"fmt"
	"strings"
	"time"
)

// Outcome kind constants
const (
	KindMatch       = "MATCH"       // File contains the term
	KindNoMatch     = "NO_MATCH"    // File read to EOF without a match
	KindExpanded    = "EXPANDED"    // Directory enumerated into child items
	KindSkipped     = "SKIPPED"     // Symbolic link, not followed
	KindUnsupported = "UNSUPPORTED" // FIFO, device, socket or unknown type
	KindError       = "ERROR"       // Entry could not be examined
)

// Outcome is the result of processing one work item.
// Every item produces exactly one terminal outcome. A failed close adds a
// second KindError outcome for the same path.
type Outcome struct {
	RunID    string    // Run the item belongs to
	Worker   int       // Index of the worker that produced it
	Path     string    // Path of the work item
	Kind     string    // One of the Kind* constants
	Line     int       // Line number of the match (KindMatch only)
	Text     string    // Matching line without trailing newline (KindMatch only)
	Children int       // Number of child items enqueued (KindExpanded only)
	FileType string    // File type name (KindUnsupported only)
	Err      error     // Failure details (KindError only)
	At       time.Time // When the outcome was produced
}

// IsFailure reports whether the outcome describes an entry that could not be examined.
func (o Outcome) IsFailure() bool {
	return o.Kind == KindError || o.Kind == KindUnsupported
}

// String renders the outcome as a single line.
func (o Outcome) String() string {
	switch o.Kind {
	case KindMatch:
		return fmt.Sprintf("worker %d: match %s:%d: %s", o.Worker, o.Path, o.Line, o.Text)
	case KindNoMatch:
		return fmt.Sprintf("worker %d: no match in %s", o.Worker, o.Path)
	case KindExpanded:
		return fmt.Sprintf("worker %d: expanded %s (%d entries)", o.Worker, o.Path, o.Children)
	case KindSkipped:
		return fmt.Sprintf("worker %d: don't follow link %s", o.Worker, o.Path)
	case KindUnsupported:
		return fmt.Sprintf("worker %d: %s file type is %s", o.Worker, o.Path, o.FileType)
	case KindError:
		return fmt.Sprintf("worker %d: %v", o.Worker, o.Err)
	default:
		return fmt.Sprintf("worker %d: %s %s", o.Worker, strings.ToLower(o.Kind), o.Path)
	}
}

// ItemError describes a per-item failure. It never stops a run.
//
// Op is one of "stat", "open directory", "read directory", "close directory",
// "read file", "close file" or "enqueue" (a child path over the length limit).
type ItemError struct {
	Op   string // Operation that failed
	Path string // Path being processed
	Err  error  // Underlying error
}

// NewItemError creates an ItemError.
func NewItemError(op, path string, err error) *ItemError {
	return &ItemError{Op: op, Path: path, Err: err}
}

// Error implements the error interface for ItemError.
func (e *ItemError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("can't %s %s", e.Op, e.Path))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ItemError) Unwrap() error {
	return e.Err
}
