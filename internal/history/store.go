// Package history keeps a SQLite ledger of build runs and their steps so
// recent outcomes can be inspected after the console output is gone.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump it when schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	areasSeparator = ","
	// timeLayout keeps a fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store persists run history.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Begin records the start of a run and returns it with a fresh identifier.
func (s *Store) Begin(ctx context.Context, command string, areas []string, hostSpec string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Command:   command,
		Areas:     areas,
		HostSpec:  hostSpec,
		Status:    StatusRunning,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, areas, host_spec, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Command,
		nullableString(strings.Join(areas, areasSeparator)),
		nullableString(hostSpec),
		run.Status,
		run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// SetHostSpec records the host spec once it is known.
func (s *Store) SetHostSpec(ctx context.Context, runID, hostSpec string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE runs SET host_spec = ? WHERE id = ?`, nullableString(hostSpec), runID); err != nil {
		return fmt.Errorf("update run host spec: %w", err)
	}
	return nil
}

// RecordStep appends a step outcome to run runID.
func (s *Store) RecordStep(ctx context.Context, step Step) error {
	if step.RecordedAt.IsZero() {
		step.RecordedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, name, status, duration_ms, error_message, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		step.RunID,
		step.Name,
		step.Status,
		step.Duration.Milliseconds(),
		nullableString(step.Error),
		step.RecordedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// Finish marks a run complete. A nil runErr means success.
func (s *Store) Finish(ctx context.Context, runID string, exitCode int, runErr error) error {
	status := StatusSucceeded
	var message string
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, exit_code = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status,
		exitCode,
		nullableString(message),
		s.now().Format(timeLayout),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

const runColumns = "id, command, areas, host_spec, status, exit_code, error_message, started_at, finished_at"

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Steps returns the steps of run runID in recording order.
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, status, duration_ms, error_message, recorded_at FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			step       Step
			status     string
			durationMS int64
			message    sql.NullString
			recorded   string
		)
		if err := rows.Scan(&step.RunID, &step.Name, &status, &durationMS, &message, &recorded); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Status = Status(status)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		step.Error = message.String
		step.RecordedAt = parseTime(recorded)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run      Run
		areas    sql.NullString
		hostSpec sql.NullString
		status   string
		exitCode sql.NullInt64
		message  sql.NullString
		started  string
		finished sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Command, &areas, &hostSpec, &status, &exitCode, &message, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	if areas.Valid && areas.String != "" {
		run.Areas = strings.Split(areas.String, areasSeparator)
	}
	run.HostSpec = hostSpec.String
	run.Status = Status(status)
	run.ExitCode = int(exitCode.Int64)
	run.Error = message.String
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	return run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
