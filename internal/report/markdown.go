package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders r as a GitHub-flavored Markdown document.
func Markdown(r *Report) []byte {
	var b bytes.Buffer
	s := r.Summary

	fmt.Fprintf(&b, "# Search report: %s\n\n", inlineCode(s.Term))
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | %s |\n", s.RunID)
	fmt.Fprintf(&b, "| Root | %s |\n", inlineCode(s.Root))
	fmt.Fprintf(&b, "| Workers | %d |\n", s.Workers)
	fmt.Fprintf(&b, "| Started | %s |\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Duration | %s |\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "| Files searched | %d |\n", s.Searched())
	fmt.Fprintf(&b, "| Matches | %d |\n", s.Matches)
	fmt.Fprintf(&b, "| Directories | %d |\n", s.Directories)
	fmt.Fprintf(&b, "| Links skipped | %d |\n", s.Skipped)
	fmt.Fprintf(&b, "| Unsupported | %d |\n", s.Unsupported)
	fmt.Fprintf(&b, "| Errors | %d |\n", s.Errors)
	if s.Aborted {
		b.WriteString("\n> **Aborted:** the run was cancelled before the tree was fully searched.\n")
	}

	b.WriteString("\n## Matches\n\n")
	if len(r.Matches) == 0 {
		b.WriteString("No matches.\n")
	} else {
		b.WriteString("| Path | Line | Text |\n|---|---:|---|\n")
		for _, m := range r.Matches {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", inlineCode(m.Path), m.Line, inlineCode(m.Text))
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failures\n\n| Path | Kind | Detail |\n|---|---|---|\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", inlineCode(f.Path), f.Kind, inlineCode(f.Detail))
		}
	}

	if len(r.Skipped) > 0 {
		b.WriteString("\n## Symbolic links not followed\n\n")
		for _, p := range r.Skipped {
			fmt.Fprintf(&b, "- %s\n", inlineCode(p))
		}
	}

	return b.Bytes()
}

// HTML renders the Markdown report to a standalone HTML page.
func HTML(r *Report) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert(Markdown(r), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>crew run %s</title>\n", htmlEscaper.Replace(r.Summary.RunID))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}

// JSON renders r as indented JSON.
func JSON(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(data, '\n'), nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// inlineCode wraps s in a code span that survives backticks and table pipes.
func inlineCode(s string) string {
	if s == "" {
		return ""
	}
	fence := strings.Repeat("`", longestBacktickRun(s)+1)
	return fence + " " + escapeCode(s) + " " + fence
}

// escapeCode escapes the characters a GFM table cell cannot hold.
func escapeCode(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func longestBacktickRun(s string) int {
	longest, run := 0, 0
	for _, c := range s {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}
