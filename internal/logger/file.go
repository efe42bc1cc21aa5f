package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/crew/internal/models"
)

// FileLogger logs crew runs to files in the log directory.
// It creates a timestamped log file per process and maintains a latest.log
// symlink pointing to the most recent one. Every outcome at or above the
// configured level is written, so the file holds the full record of a run
// even when the console is quiet.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a new FileLogger that writes to .crew/logs/ at info level.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(filepath.Join(".crew", "logs"), "info")
}

// NewFileLoggerWithDirAndLevel creates a new FileLogger with a custom log directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== Crew Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// Path returns the path of the run log file.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// TraceEnabled reports whether trace messages pass the level filter.
func (fl *FileLogger) TraceEnabled() bool {
	return fl.shouldLog("trace")
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message))
}

// LogRunStart logs the start of a run at INFO level.
func (fl *FileLogger) LogRunStart(q *models.Query, workers int) {
	if q == nil || !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf(
		"[%s] === RUN %s ===\n[%s] Root: %s\n[%s] Term: %q\n[%s] Workers: %d\n",
		time.Now().Format("15:04:05"), q.RunID,
		time.Now().Format("15:04:05"), q.Root,
		time.Now().Format("15:04:05"), q.Term,
		time.Now().Format("15:04:05"), workers,
	))
}

// Record logs one outcome, tagged with its kind.
// Misses are written at debug level; the file does not honor show_misses.
func (fl *FileLogger) Record(o models.Outcome) {
	level := outcomeLevel(o, false)
	if !fl.shouldLog(level) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] [%s] %s\n",
		o.At.Format("15:04:05"), strings.ToUpper(level), o.Kind, o.String()))
}

// LogRunComplete logs the run summary at INFO level.
func (fl *FileLogger) LogRunComplete(summary models.RunSummary) {
	if !fl.shouldLog("info") {
		return
	}

	status := "COMPLETE"
	if summary.Aborted {
		status = "ABORTED"
	}

	ts := time.Now().Format("15:04:05")
	message := fmt.Sprintf(
		"\n[%s] === RUN SUMMARY ===\n"+
			"[%s] Run:          %s\n"+
			"[%s] Matches:      %d\n"+
			"[%s] No match:     %d\n"+
			"[%s] Directories:  %d\n"+
			"[%s] Skipped:      %d\n"+
			"[%s] Unsupported:  %d\n"+
			"[%s] Errors:       %d\n"+
			"[%s] Total time:   %.3fs\n"+
			"[%s] Status:       %s\n\n",
		ts,
		ts, summary.RunID,
		ts, summary.Matches,
		ts, summary.Misses,
		ts, summary.Directories,
		ts, summary.Skipped,
		ts, summary.Unsupported,
		ts, summary.Errors,
		ts, summary.Duration().Seconds(),
		ts, status,
	)

	fl.writeRunLog(message)
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}

	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
	}
}
