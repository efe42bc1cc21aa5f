// Package report renders the outcome of a run into a Markdown, HTML or JSON file.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/harrison/crew/internal/filelock"
	"github.com/harrison/crew/internal/models"
)

// Supported formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// Match is one file containing the term.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Failure is one entry that could not be examined.
type Failure struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Report is the sorted, render-ready view of one run.
type Report struct {
	Summary  models.RunSummary `json:"summary"`
	Matches  []Match           `json:"matches"`
	Failures []Failure         `json:"failures"`
	Skipped  []string          `json:"skipped"`
}

// Build groups outcomes into a Report. Every list is sorted by path so the
// report does not depend on worker scheduling.
func Build(summary models.RunSummary, outcomes []models.Outcome) *Report {
	r := &Report{
		Summary:  summary,
		Matches:  []Match{},
		Failures: []Failure{},
		Skipped:  []string{},
	}

	for _, o := range outcomes {
		switch o.Kind {
		case models.KindMatch:
			r.Matches = append(r.Matches, Match{Path: o.Path, Line: o.Line, Text: o.Text})
		case models.KindSkipped:
			r.Skipped = append(r.Skipped, o.Path)
		case models.KindUnsupported:
			r.Failures = append(r.Failures, Failure{Path: o.Path, Kind: o.Kind, Detail: "file type is " + o.FileType})
		case models.KindError:
			detail := "unknown error"
			if o.Err != nil {
				detail = o.Err.Error()
			}
			r.Failures = append(r.Failures, Failure{Path: o.Path, Kind: o.Kind, Detail: detail})
		}
	}

	sort.Slice(r.Matches, func(i, j int) bool { return r.Matches[i].Path < r.Matches[j].Path })
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].Path < r.Failures[j].Path })
	sort.Strings(r.Skipped)
	return r
}

// Render encodes r in the named format.
func Render(format string, r *Report) ([]byte, error) {
	switch format {
	case FormatMarkdown, "":
		return Markdown(r), nil
	case FormatHTML:
		return HTML(r)
	case FormatJSON:
		return JSON(r)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Write renders r and replaces the file at path atomically, holding
// "<path>.lock" so concurrent crews writing the same report do not interleave.
func Write(ctx context.Context, path, format string, r *Report) error {
	data, err := Render(format, r)
	if err != nil {
		return err
	}
	if err := filelock.LockAndWrite(ctx, path, data); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
