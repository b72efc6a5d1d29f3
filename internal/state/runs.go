package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const runColumns = `id, environment, input_path, output_path, status, rows_in, rows_out, started_at, completed_at, error`

// CreateRun creates a new run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, env, inputPath string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:          generateID(),
		Environment: env,
		InputPath:   inputPath,
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("environment", env))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, environment, input_path, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Environment, run.InputPath, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// SetRunRows records the input and output row counts of a run.
func (s *SQLiteStore) SetRunRows(ctx context.Context, id string, rowsIn, rowsOut int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET rows_in = ?, rows_out = ? WHERE id = ?`, rowsIn, rowsOut, id)
	if err != nil {
		return fmt.Errorf("failed to update run rows: %w", err)
	}
	return requireAffected(res, id)
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, outputPath, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	s.logger.Debug("completing run", slog.String("id", id), slog.String("status", string(status)))

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output_path = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), outputPath, formatTime(time.Now()), nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return requireAffected(res, id)
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun retrieves the most recent run for an environment.
// It returns nil without error when the environment has no runs.
func (s *SQLiteStore) LatestRun(ctx context.Context, env string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE environment = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, env)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run         Run
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Environment, &run.InputPath, &run.OutputPath, &status,
		&run.RowsIn, &run.RowsOut, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Error = errMsg.String

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
