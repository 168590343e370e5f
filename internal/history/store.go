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

	_ "modernc.org/sqlite"

	"pipewright/internal/pipeline"
)

// Store persists run reports in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open creates or connects to the journal at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished run and its child exits in one transaction. It
// implements pipeline.Recorder.
func (s *Store) Record(ctx context.Context, report pipeline.Report) error {
	if strings.TrimSpace(report.RunID) == "" {
		return errors.New("record run: run id is empty")
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, name, pipe_dir, outcome, error, started_at, finished_at, children, failed)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			report.Name,
			report.PipeDir,
			report.Outcome,
			nullString(report.Error),
			formatTime(report.Started),
			formatTime(report.Finished),
			len(report.Exits),
			report.FailedChildren(),
		)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", report.RunID, err)
		}
		for i, exit := range report.Exits {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO children (run_id, seq, pid, label, kind, status, exit_code, signal, duration_ms, error)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID,
				i,
				exit.PID,
				exit.Label,
				exit.Kind,
				exit.Status(),
				exit.ExitCode,
				nullString(exit.Signal),
				exit.Duration.Milliseconds(),
				nullString(exit.Error),
			)
			if err != nil {
				return fmt.Errorf("insert child %d of run %s: %w", i, report.RunID, err)
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, run_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run, or nil when the id is unknown.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

// Children returns the recorded exits of a run in spawn order.
func (s *Store) Children(ctx context.Context, runID string) ([]ChildExit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, pid, label, kind, status, exit_code, signal, duration_ms, error
         FROM children WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ChildExit
	for rows.Next() {
		var (
			c          ChildExit
			signal     sql.NullString
			errMessage sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&c.Seq, &c.PID, &c.Label, &c.Kind, &c.Status, &c.ExitCode, &signal, &durationMS, &errMessage); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		c.Signal = signal.String
		c.Error = errMessage.String
		c.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
