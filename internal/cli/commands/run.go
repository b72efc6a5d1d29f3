package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapprep/internal/cli/output"
	"github.com/leapstack-labs/leapprep/internal/engine"
	"github.com/leapstack-labs/leapprep/internal/state"
	"github.com/leapstack-labs/leapprep/pkg/frame"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Preview int
	Watch   bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean the input table and derive features",
		Long: `Run the preprocessing pipeline over the input table.

The cleaning stage imputes and normalizes raw columns, then the feature stage
derives price per area, coordinates relative to the center of wealth and the
distance to the nearest waterfront house. The result is written to the output
path only when every step succeeds. Each run and its steps are recorded in
the state database.

Use --watch to rerun whenever the input file changes.`,
		Example: `  # Run the pipeline with settings from leapprep.yaml
  leapprep run

  # Show the first rows of the result
  leapprep run --preview 5

  # Rerun on every change to the input file
  leapprep run --input data/kc_house_data.csv --watch

  # Machine-readable run report
  leapprep run -o json`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Preview, "preview", 0, "Print the first N rows of the result")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun when the input file changes")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	if opts.Preview < 0 {
		return fmt.Errorf("--preview must be >= 0, got %d", opts.Preview)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runErr := runOnce(ctx, cmdCtx, opts)
	if !opts.Watch {
		return runErr
	}

	r := cmdCtx.Renderer
	r.Println(r.Muted(fmt.Sprintf("Watching %s for changes. Press Ctrl+C to stop.", cmdCtx.Cfg.InputPath)))
	return watchFile(ctx, cmdCtx.Cfg.InputPath, watchDebounce, func() {
		cmdCtx.Logger.Info("input changed, rerunning", "path", cmdCtx.Cfg.InputPath)
		if err := runOnce(ctx, cmdCtx, opts); err != nil {
			cmdCtx.Logger.Error("rerun failed", "error", err)
		}
	})
}

// runReport is the structured form of a run.
type runReport struct {
	Run     *state.Run       `json:"run" yaml:"run"`
	Steps   []*state.StepRun `json:"steps" yaml:"steps"`
	Preview []map[string]any `json:"preview,omitempty" yaml:"preview,omitempty"`
}

// runOnce executes one run and renders its report. The run error is
// returned after the report is printed.
func runOnce(ctx context.Context, cmdCtx *CommandContext, opts *RunOptions) error {
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	run, runErr := eng.Run(ctx)
	if run == nil {
		return runErr
	}

	steps, err := eng.StateStore().ListStepRuns(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return fmt.Errorf("failed to list step runs: %w", err)
	}

	var preview *frame.Table
	if opts.Preview > 0 && runErr == nil {
		preview = eng.Preview(opts.Preview)
	}

	report := runReport{Run: run, Steps: steps, Preview: previewRows(preview)}
	if ok, err := r.Structured(report); ok || err != nil {
		if err != nil {
			return err
		}
		return runErr
	}

	renderRun(r, run, steps)
	if errors.Is(runErr, engine.ErrSchema) {
		r.Warning("Hint: set loader.engine and loader.params to match the input file")
	}
	if preview != nil {
		r.Header(2, fmt.Sprintf("Preview (%s rows)", r.Number(preview.Len())))
		renderTable(r, preview)
	}
	return runErr
}

// renderRun prints a run summary and its steps.
func renderRun(r *output.Renderer, run *state.Run, steps []*state.StepRun) {
	r.Header(1, "Run "+run.ID)
	s := r.Styles()
	kv := func(k, v string) {
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Printf("- **%s:** %s\n", k, v)
			return
		}
		r.Printf("%s %s\n", s.Key.Render(k+":"), v)
	}
	kv("Environment", run.Environment)
	kv("Input", run.InputPath)
	if run.OutputPath != "" {
		kv("Output", run.OutputPath)
	}
	kv("Rows", fmt.Sprintf("%s in, %s out", r.Number(run.RowsIn), r.Number(run.RowsOut)))
	if d := run.Duration(); d > 0 {
		kv("Duration", d.Round(time.Millisecond).String())
	}
	kv("Status", s.StatusStyle(string(run.Status)).Render(string(run.Status)))
	r.Println("")

	if len(steps) > 0 {
		r.Header(2, "Steps")
		rows := make([][]string, 0, len(steps))
		for _, sr := range steps {
			rows = append(rows, []string{
				strconv.Itoa(sr.Position),
				sr.Stage,
				sr.Step,
				s.StatusStyle(string(sr.Status)).Render(string(sr.Status)),
				r.Number(sr.Rows),
				fmt.Sprintf("%dms", sr.DurationMS),
				sr.Error,
			})
		}
		r.Table([]string{"#", "stage", "step", "status", "rows", "time", "error"}, rows)
	}

	switch run.Status {
	case state.RunStatusCompleted:
		r.Success(fmt.Sprintf("Run completed: %s rows", r.Number(run.RowsOut)))
	default:
		r.Fail(fmt.Sprintf("Run %s: %s", run.Status, run.Error))
	}
}

// renderTable prints a frame as a table.
func renderTable(r *output.Renderer, t *frame.Table) {
	header, records := t.Records()
	r.Table(header, records)
}

// previewRows converts a frame to row maps keyed by column name.
func previewRows(t *frame.Table) []map[string]any {
	if t == nil {
		return nil
	}
	cols := t.Columns()
	rows := make([]map[string]any, t.Len())
	for i := range rows {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			switch {
			case c.IsMissing(i):
				row[c.Name()] = nil
			case c.Kind().Numeric():
				row[c.Name()] = c.Float(i)
			default:
				row[c.Name()] = c.Cell(i)
			}
		}
		rows[i] = row
	}
	return rows
}
