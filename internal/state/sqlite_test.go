package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprep/internal/testutil"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenMigrates(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"runs", "step_runs"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	run, err := store.CreateRun(context.Background(), "dev", "in.csv")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening runs no migrations twice and keeps the data.
	store = NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	defer store.Close()
	got, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "in.csv", got.InputPath)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.CreateRun(ctx, "dev", "")
	assert.ErrorContains(t, err, "database not opened")
	_, err = store.ListStepRuns(ctx, "x")
	assert.ErrorContains(t, err, "database not opened")
	assert.Error(t, store.Migrate())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		status     RunStatus
		errMsg     string
		wantErrMsg string
	}{
		{name: "completed", status: RunStatusCompleted},
		{name: "failed", status: RunStatusFailed, errMsg: "boom", wantErrMsg: "boom"},
		{name: "cancelled", status: RunStatusCancelled, errMsg: "context canceled", wantErrMsg: "context canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			ctx := context.Background()

			run, err := store.CreateRun(ctx, "dev", "data/houses.csv")
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, RunStatusRunning, run.Status)
			assert.Nil(t, run.CompletedAt)
			assert.Zero(t, run.Duration())

			require.NoError(t, store.SetRunRows(ctx, run.ID, 21613, 21597))
			require.NoError(t, store.CompleteRun(ctx, run.ID, tt.status, "out/features.csv", tt.errMsg))

			got, err := store.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.wantErrMsg, got.Error)
			assert.Equal(t, 21613, got.RowsIn)
			assert.Equal(t, 21597, got.RowsOut)
			assert.Equal(t, "out/features.csv", got.OutputPath)
			assert.True(t, run.StartedAt.Equal(got.StartedAt))
			require.NotNil(t, got.CompletedAt)
			assert.GreaterOrEqual(t, got.Duration(), time.Duration(0))
		})
	}
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.CompleteRun(ctx, "missing", RunStatusCompleted, "", ""), ErrRunNotFound)
	assert.ErrorIs(t, store.SetRunRows(ctx, "missing", 1, 1), ErrRunNotFound)
}

func TestSQLiteStore_LatestAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestRun(ctx, "dev")
	require.NoError(t, err)
	assert.Nil(t, latest, "no runs yet")

	var ids []string
	for _, env := range []string{"dev", "prod", "dev"} {
		run, err := store.CreateRun(ctx, env, "in.csv")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	latest, err = store.LatestRun(ctx, "dev")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_StepRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, "dev", "in.csv")
	require.NoError(t, err)

	steps := []string{"view_imputer", "basement_fixer", "waterfront_imputer"}
	var records []*StepRun
	for i, name := range steps {
		sr := &StepRun{RunID: run.ID, Position: i, Stage: "cleaning", Step: name}
		require.NoError(t, store.RecordStepRun(ctx, sr))
		assert.NotEmpty(t, sr.ID)
		assert.Equal(t, StepStatusPending, sr.Status)
		records = append(records, sr)
	}

	require.NoError(t, store.UpdateStepRun(ctx, records[0].ID, StepStatusSuccess, 5, 12, ""))
	require.NoError(t, store.UpdateStepRun(ctx, records[1].ID, StepStatusFailed, 5, 3, "bad basement"))

	skipped, err := store.SkipPendingSteps(ctx, run.ID, "upstream failure")
	require.NoError(t, err)
	assert.Equal(t, int64(1), skipped)

	got, err := store.ListStepRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "view_imputer", got[0].Step)
	assert.Equal(t, StepStatusSuccess, got[0].Status)
	assert.Equal(t, int64(12), got[0].DurationMS)
	assert.Equal(t, 5, got[0].Rows)
	assert.Empty(t, got[0].Error)

	assert.Equal(t, StepStatusFailed, got[1].Status)
	assert.Equal(t, "bad basement", got[1].Error)

	assert.Equal(t, StepStatusSkipped, got[2].Status)
	assert.Equal(t, "upstream failure", got[2].Error)

	assert.Error(t, store.UpdateStepRun(ctx, "missing", StepStatusSuccess, 0, 0, ""))
}

func TestSQLiteStore_StepRunsRequireRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordStepRun(context.Background(), &StepRun{RunID: "missing", Stage: "cleaning", Step: "view_imputer"})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestSQLiteStore_DuplicatePosition(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, "dev", "in.csv")
	require.NoError(t, err)
	require.NoError(t, store.RecordStepRun(ctx, &StepRun{RunID: run.ID, Position: 0, Stage: "cleaning", Step: "a"}))
	assert.Error(t, store.RecordStepRun(ctx, &StepRun{RunID: run.ID, Position: 0, Stage: "cleaning", Step: "b"}))
}

func TestSQLiteStore_DriverErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		call      func(s *SQLiteStore) error
		errMsg    string
	}{
		{
			name: "create run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO runs").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.CreateRun(context.Background(), "dev", "")
				return err
			},
			errMsg: "failed to create run",
		},
		{
			name: "get run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM runs WHERE id").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.GetRun(context.Background(), "x")
				return err
			},
			errMsg: "failed to get run",
		},
		{
			name: "corrupt timestamp",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "environment", "input_path", "output_path", "status",
					"rows_in", "rows_out", "started_at", "completed_at", "error"}).
					AddRow("x", "dev", "", "", "running", 0, 0, "yesterday", nil, nil)
				mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnRows(rows)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.ListRuns(context.Background(), 10)
				return err
			},
			errMsg: "invalid timestamp",
		},
		{
			name: "skip pending",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE step_runs").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.SkipPendingSteps(context.Background(), "x", "")
				return err
			},
			errMsg: "failed to skip pending steps",
		},
		{
			name: "update step rows affected",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE step_runs").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("no rows info")))
			},
			call: func(s *SQLiteStore) error {
				return s.UpdateStepRun(context.Background(), "x", StepStatusSuccess, 0, 0, "")
			},
			errMsg: "failed to read affected rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			err = tt.call(NewSQLiteStoreWithDB(db, nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
