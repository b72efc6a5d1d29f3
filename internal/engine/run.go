package engine

// run.go - Execution orchestration for one pipeline run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapprep/internal/dataset"
	"github.com/leapstack-labs/leapprep/internal/state"
	"github.com/leapstack-labs/leapprep/internal/transform"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// ErrSchema is returned when the input lacks columns the pipeline reads.
var ErrSchema = errors.New("input schema mismatch")

// Run loads the input, runs every pipeline step and writes the output.
// The output is only written when every step succeeds. The returned run is
// non-nil whenever a run record was created, including on failure.
func (e *Engine) Run(ctx context.Context) (*state.Run, error) {
	e.logger.Info("starting run", "environment", e.environment, "input", e.inputPath)

	// Run bookkeeping lands even when ctx is cancelled.
	bookkeeping := context.WithoutCancel(ctx)

	run, err := e.store.CreateRun(bookkeeping, e.environment, e.inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	e.logger.Debug("created run", "run_id", run.ID)

	records, err := e.recordSteps(bookkeeping, run.ID)
	if err != nil {
		return e.finish(run.ID, "", err)
	}

	out, err := e.execute(ctx, run.ID, records)
	if err != nil {
		e.skipRemaining(run.ID, err)
		return e.finish(run.ID, "", err)
	}

	if e.outputPath != "" {
		if err := e.write(ctx, out); err != nil {
			return e.finish(run.ID, "", err)
		}
	}

	e.mu.Lock()
	e.last = out
	e.mu.Unlock()

	return e.finish(run.ID, e.outputPath, nil)
}

func (e *Engine) execute(ctx context.Context, runID string, records map[string]*state.StepRun) (*frame.Table, error) {
	t, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	rowsIn := t.Len()

	if len(e.loader.DropRows) > 0 {
		if err := t.DropRows(e.loader.DropRows...); err != nil {
			return nil, fmt.Errorf("failed to drop rows: %w", err)
		}
		e.logger.Debug("dropped rows", "rows", e.loader.DropRows)
	}

	if err := e.validateSchema(t); err != nil {
		return nil, err
	}

	rec := &stepRecorder{ctx: ctx, engine: e, records: records}
	out, err := e.pipeline.WithObserver(rec).FitTransform(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := e.store.SetRunRows(context.WithoutCancel(ctx), runID, rowsIn, out.Len()); err != nil {
		return nil, fmt.Errorf("failed to record row counts: %w", err)
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context) (*frame.Table, error) {
	src, err := dataset.OpenSource(dataset.Config{
		Engine: e.loader.Engine,
		Path:   e.inputPath,
		Params: e.loader.Params,
		Logger: e.logger,
	})
	if err != nil {
		return nil, err
	}
	t, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", e.inputPath, err)
	}
	e.logger.Debug("loaded input", "rows", t.Len(), "columns", t.Width())
	return t, nil
}

func (e *Engine) write(ctx context.Context, t *frame.Table) error {
	sink, err := dataset.OpenSink(dataset.Config{
		Engine: e.loader.Engine,
		Path:   e.outputPath,
		Params: e.sinkParams,
		Logger: e.logger,
	})
	if err != nil {
		return err
	}
	if err := sink.Write(ctx, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.outputPath, err)
	}
	return nil
}

// validateSchema fails fast when raw columns read by any step are absent.
func (e *Engine) validateSchema(t *frame.Table) error {
	var missing []string
	for _, col := range e.lineage.Inputs {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %v", ErrSchema, missing)
	}
	return nil
}

// recordSteps creates a pending step run for every pipeline step.
func (e *Engine) recordSteps(ctx context.Context, runID string) (map[string]*state.StepRun, error) {
	records := make(map[string]*state.StepRun)
	for i, ref := range e.pipeline.Steps() {
		sr := &state.StepRun{
			RunID:    runID,
			Position: i,
			Stage:    ref.Stage,
			Step:     ref.Step,
			Status:   state.StepStatusPending,
		}
		if err := e.store.RecordStepRun(ctx, sr); err != nil {
			return nil, fmt.Errorf("failed to record step %s: %w", ref.Step, err)
		}
		records[transform.StepID(ref.Stage, ref.Step)] = sr
	}
	return records, nil
}

func (e *Engine) skipRemaining(runID string, cause error) {
	reason := "skipped: run failed before this step"
	var stepErr *transform.StepError
	if errors.As(cause, &stepErr) {
		reason = fmt.Sprintf("skipped: upstream step %s failed", stepErr.Step)
	}
	n, err := e.store.SkipPendingSteps(context.Background(), runID, reason)
	if err != nil {
		e.logger.Warn("failed to mark steps skipped", "run_id", runID, "error", err)
		return
	}
	e.logger.Debug("marked steps skipped", "run_id", runID, "count", n)
}

func (e *Engine) finish(runID, outputPath string, runErr error) (*state.Run, error) {
	ctx := context.Background()
	status := state.RunStatusCompleted
	errMsg := ""
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = state.RunStatusCancelled
		errMsg = runErr.Error()
	case runErr != nil:
		status = state.RunStatusFailed
		errMsg = runErr.Error()
	}

	if runErr != nil {
		e.logger.Info("run failed", "run_id", runID, "status", string(status), "error", errMsg)
	} else {
		e.logger.Info("run completed", "run_id", runID, "output", outputPath)
	}

	if err := e.store.CompleteRun(ctx, runID, status, outputPath, errMsg); err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("failed to complete run: %w", err))
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return run, runErr
}

// stepRecorder mirrors step progress into the state store.
type stepRecorder struct {
	ctx     context.Context
	engine  *Engine
	records map[string]*state.StepRun
}

func (r *stepRecorder) StepStarted(stage, step string, rows int) {
	sr, ok := r.records[transform.StepID(stage, step)]
	if !ok {
		return
	}
	if err := r.engine.store.UpdateStepRun(context.WithoutCancel(r.ctx), sr.ID, state.StepStatusRunning, rows, 0, ""); err != nil {
		r.engine.logger.Warn("failed to update step run", "step", step, "error", err)
	}
}

func (r *stepRecorder) StepFinished(stage, step string, rows int, elapsed time.Duration, err error) {
	sr, ok := r.records[transform.StepID(stage, step)]
	if !ok {
		return
	}
	status, errMsg := state.StepStatusSuccess, ""
	if err != nil {
		status, errMsg = state.StepStatusFailed, err.Error()
	}
	if uerr := r.engine.store.UpdateStepRun(context.WithoutCancel(r.ctx), sr.ID, status, rows, elapsed.Milliseconds(), errMsg); uerr != nil {
		r.engine.logger.Warn("failed to update step run", "step", step, "error", uerr)
	}
}
