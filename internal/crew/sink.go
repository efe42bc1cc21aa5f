package crew

import "github.com/harrison/crew/internal/models"

// Sink receives outcomes as workers produce them.
//
// Record is called concurrently from every worker; implementations must be
// safe for concurrent use and treat each call as one atomic result. No global
// order is guaranteed between outcomes of different workers.
type Sink interface {
	Record(o models.Outcome)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(o models.Outcome)

// Record calls f(o).
func (f SinkFunc) Record(o models.Outcome) {
	f(o)
}

// Tee returns a Sink that forwards every outcome to each non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return tee(live)
}

type tee []Sink

func (t tee) Record(o models.Outcome) {
	for _, s := range t {
		s.Record(o)
	}
}

// Logger receives run lifecycle events and worker diagnostics.
// The logger package provides console and file implementations.
type Logger interface {
	LogTrace(message string)
	LogRunStart(q *models.Query, workers int)
	LogRunComplete(summary models.RunSummary)
}

// TraceLeveler is implemented by loggers that can tell whether trace
// messages would be written. Loggers without it always receive them.
type TraceLeveler interface {
	TraceEnabled() bool
}

func traceEnabled(l Logger) bool {
	if tl, ok := l.(TraceLeveler); ok {
		return tl.TraceEnabled()
	}
	return true
}

type nopLogger struct{}

func (nopLogger) TraceEnabled() bool               { return false }
func (nopLogger) LogTrace(string)                  {}
func (nopLogger) LogRunStart(*models.Query, int)   {}
func (nopLogger) LogRunComplete(models.RunSummary) {}

// TeeLogger returns a Logger that forwards every event to each non-nil logger in order.
func TeeLogger(loggers ...Logger) Logger {
	var live []Logger
	for _, l := range loggers {
		if l != nil {
			live = append(live, l)
		}
	}
	return teeLogger(live)
}

type teeLogger []Logger

func (t teeLogger) TraceEnabled() bool {
	for _, l := range t {
		if traceEnabled(l) {
			return true
		}
	}
	return false
}

func (t teeLogger) LogTrace(message string) {
	for _, l := range t {
		l.LogTrace(message)
	}
}

func (t teeLogger) LogRunStart(q *models.Query, workers int) {
	for _, l := range t {
		l.LogRunStart(q, workers)
	}
}

func (t teeLogger) LogRunComplete(summary models.RunSummary) {
	for _, l := range t {
		l.LogRunComplete(summary)
	}
}
