// Package logger provides logging implementations for crew runs.
//
// Loggers report run lifecycle events and per-item outcomes. They implement
// both crew.Logger and crew.Sink, are safe for concurrent use by every worker
// of a crew, and filter messages by level.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/crew/internal/models"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps.
// Color output is enabled when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	showMisses  bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// SetShowMisses promotes files searched without a match from debug to info.
func (cl *ConsoleLogger) SetShowMisses(show bool) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.showMisses = show
}

// isTerminal reports whether w is a file attached to a terminal.
// NO_COLOR disables color regardless of the terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// outcomeLevel picks the level an outcome is logged at.
func outcomeLevel(o models.Outcome, showMisses bool) string {
	switch o.Kind {
	case models.KindMatch:
		return "info"
	case models.KindNoMatch:
		if showMisses {
			return "info"
		}
		return "debug"
	case models.KindError, models.KindUnsupported:
		return "warn"
	default:
		return "debug"
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// TraceEnabled reports whether trace messages pass the level filter.
func (cl *ConsoleLogger) TraceEnabled() bool {
	return cl.writer != nil && cl.shouldLog("trace")
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.writeLocked(level, message)
}

func (cl *ConsoleLogger) writeLocked(level, message string) {
	lvl := level
	if cl.colorOutput {
		lvl = paint(levelColor(level), level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), lvl, message)
}

func levelColor(level string) color.Attribute {
	switch level {
	case "TRACE":
		return color.FgHiBlack
	case "DEBUG":
		return color.FgCyan
	case "INFO":
		return color.FgBlue
	case "WARN":
		return color.FgYellow
	default:
		return color.FgRed
	}
}

// paint colors s even when stdout itself is not a terminal.
func paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

// LogRunStart logs the root, term and crew size of a run at INFO level.
func (cl *ConsoleLogger) LogRunStart(q *models.Query, workers int) {
	if q == nil {
		return
	}
	cl.LogInfo(fmt.Sprintf("Searching %s for %q with %d workers (run %s)", q.Root, q.Term, workers, q.RunID))
}

// Record logs one outcome. Matches are printed at INFO, failures at WARN and
// everything else at DEBUG.
func (cl *ConsoleLogger) Record(o models.Outcome) {
	if cl.writer == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	level := outcomeLevel(o, cl.showMisses)
	if !cl.shouldLog(level) {
		return
	}

	message := o.String()
	if cl.colorOutput && o.Kind == models.KindMatch {
		message = fmt.Sprintf("worker %d: match %s: %s", o.Worker,
			paint(color.FgGreen, fmt.Sprintf("%s:%d", o.Path, o.Line)), o.Text)
	}
	cl.writeLocked(strings.ToUpper(level), message)
}

// LogRunComplete logs the run summary at INFO level.
func (cl *ConsoleLogger) LogRunComplete(summary models.RunSummary) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	header := "=== Search Summary ==="
	matches := fmt.Sprintf("Matches: %d", summary.Matches)
	failures := fmt.Sprintf("Errors: %d, unsupported: %d", summary.Errors, summary.Unsupported)
	if cl.colorOutput {
		header = paint(color.Bold, header)
		if summary.Matches > 0 {
			matches = paint(color.FgGreen, matches)
		}
		if summary.Errors+summary.Unsupported > 0 {
			failures = paint(color.FgRed, failures)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", ts, header)
	fmt.Fprintf(&sb, "[%s] %s in %d of %d files\n", ts, matches, summary.Matches, summary.Searched())
	fmt.Fprintf(&sb, "[%s] Directories: %d, links skipped: %d\n", ts, summary.Directories, summary.Skipped)
	fmt.Fprintf(&sb, "[%s] %s\n", ts, failures)
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(summary.Duration()))
	if summary.Aborted {
		aborted := "Run aborted before the tree was fully searched"
		if cl.colorOutput {
			aborted = paint(color.FgYellow, aborted)
		}
		fmt.Fprintf(&sb, "[%s] %s\n", ts, aborted)
	}

	io.WriteString(cl.writer, sb.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "250ms", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger discards all events and outcomes.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// TraceEnabled always reports false.
func (n *NoOpLogger) TraceEnabled() bool { return false }

// LogTrace is a no-op implementation.
func (n *NoOpLogger) LogTrace(message string) {}

// LogRunStart is a no-op implementation.
func (n *NoOpLogger) LogRunStart(q *models.Query, workers int) {}

// LogRunComplete is a no-op implementation.
func (n *NoOpLogger) LogRunComplete(summary models.RunSummary) {}

// Record is a no-op implementation.
func (n *NoOpLogger) Record(o models.Outcome) {}
