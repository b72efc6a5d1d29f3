package state

import (
	"context"
	"fmt"
)

// RecordStepRun inserts a step run. An empty ID is generated and written back.
func (s *SQLiteStore) RecordStepRun(ctx context.Context, sr *StepRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if sr.ID == "" {
		sr.ID = generateID()
	}
	if sr.Status == "" {
		sr.Status = StepStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_runs (id, run_id, position, stage, step, status, rows, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.RunID, sr.Position, sr.Stage, sr.Step, string(sr.Status),
		sr.Rows, sr.DurationMS, nullString(sr.Error))
	if err != nil {
		return fmt.Errorf("failed to record step run: %w", err)
	}
	return nil
}

// UpdateStepRun sets the outcome of a step run.
func (s *SQLiteStore) UpdateStepRun(ctx context.Context, id string, status StepStatus, rows int, durationMS int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE step_runs SET status = ?, rows = ?, duration_ms = ?, error = ? WHERE id = ?`,
		string(status), rows, durationMS, nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to update step run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("step run not found: %s", id)
	}
	return nil
}

// SkipPendingSteps marks every pending or running step of a run as skipped
// and returns how many were changed.
func (s *SQLiteStore) SkipPendingSteps(ctx context.Context, runID, reason string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE step_runs SET status = ?, error = ? WHERE run_id = ? AND status IN (?, ?)`,
		string(StepStatusSkipped), nullString(reason), runID,
		string(StepStatusPending), string(StepStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to skip pending steps: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// ListStepRuns returns the step runs of a run in pipeline order.
func (s *SQLiteStore) ListStepRuns(ctx context.Context, runID string) ([]*StepRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, position, stage, step, status, rows, duration_ms, COALESCE(error, '')
		 FROM step_runs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*StepRun
	for rows.Next() {
		var (
			sr     StepRun
			status string
		)
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Position, &sr.Stage, &sr.Step, &status,
			&sr.Rows, &sr.DurationMS, &sr.Error); err != nil {
			return nil, fmt.Errorf("failed to scan step run: %w", err)
		}
		sr.Status = StepStatus(status)
		out = append(out, &sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list step runs: %w", err)
	}
	return out, nil
}
