// Package history records finished crew runs and their outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/crew/internal/filelock"
	"github.com/harrison/crew/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by GetRun when no run matches the id.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRunID is returned by GetRun when an id prefix matches several runs.
var ErrAmbiguousRunID = errors.New("run id prefix is ambiguous")

// Entry is one stored outcome. Errors are kept as their message.
type Entry struct {
	Worker   int
	Path     string
	Kind     string
	Line     int
	Text     string
	Children int
	FileType string
	Error    string
	At       time.Time
}

// EntryFromOutcome converts an outcome into its stored form.
func EntryFromOutcome(o models.Outcome) Entry {
	e := Entry{
		Worker:   o.Worker,
		Path:     o.Path,
		Kind:     o.Kind,
		Line:     o.Line,
		Text:     o.Text,
		Children: o.Children,
		FileType: o.FileType,
		At:       o.At,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// Run is a recorded run with its outcomes in production order.
type Run struct {
	Summary models.RunSummary
	Entries []Entry
}

// Store manages the SQLite run history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens the database at dbPath, creating it and its parent
// directory if needed, and applies pending migrations. ":memory:" opens a
// private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	var store *Store
	// Concurrent crew processes may open a fresh database at the same time.
	err := filelock.WithLock(context.Background(), dbPath, func() error {
		var err error
		store, err = openAndInitStore(dbPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every new connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement with exponential backoff on "database is locked".
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a run summary and its outcomes in one transaction.
// Recording the same run id twice fails.
func (s *Store) RecordRun(ctx context.Context, summary models.RunSummary, outcomes []models.Outcome) error {
	if summary.RunID == "" {
		return fmt.Errorf("record run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, root, term, workers, matches, misses, directories, skipped, unsupported, errors, started_at, finished_at, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.Root, summary.Term, summary.Workers,
		summary.Matches, summary.Misses, summary.Directories, summary.Skipped, summary.Unsupported, summary.Errors,
		summary.StartedAt.UnixNano(), summary.FinishedAt.UnixNano(), summary.Aborted,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes
		(run_id, worker, path, kind, line, text, children, file_type, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		e := EntryFromOutcome(o)
		if _, err := stmt.ExecContext(ctx, summary.RunID, e.Worker, e.Path, e.Kind, e.Line, e.Text,
			e.Children, e.FileType, e.Error, e.At.UnixNano()); err != nil {
			return fmt.Errorf("insert outcome for %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", summary.RunID, err)
	}
	return nil
}

const runColumns = `id, root, term, workers, matches, misses, directories, skipped, unsupported, errors, started_at, finished_at, aborted`

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun loads one run and its outcomes. id is either a full run id or a
// unique prefix of one.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("get run: %w", ErrRunNotFound)
	}

	fullID, err := s.resolveRunID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, fullID)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT worker, path, kind, line, text, children, file_type, error, at
		FROM outcomes WHERE run_id = ? ORDER BY id`, fullID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	run := &Run{Summary: summary}
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.Worker, &e.Path, &e.Kind, &e.Line, &e.Text, &e.Children, &e.FileType, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return run, nil
}

// resolveRunID maps a full id or unique prefix onto a stored run id.
func (s *Store) resolveRunID(ctx context.Context, id string) (string, error) {
	if _, err := uuid.Parse(id); err == nil {
		return id, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(id), id)
	if err != nil {
		return "", fmt.Errorf("query run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return "", fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, full)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate run ids: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("get run %s: %w", id, ErrAmbiguousRunID)
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (models.RunSummary, error) {
	var s models.RunSummary
	var started, finished int64
	err := row.Scan(&s.RunID, &s.Root, &s.Term, &s.Workers,
		&s.Matches, &s.Misses, &s.Directories, &s.Skipped, &s.Unsupported, &s.Errors,
		&started, &finished, &s.Aborted)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("scan run: %w", err)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	s.FinishedAt = time.Unix(0, finished).UTC()
	return s, nil
}
