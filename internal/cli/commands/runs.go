package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapprep/internal/state"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id|latest]",
		Short: "Show run history",
		Long: `List recorded runs, newest first, or show the steps of a single run.

Pass "latest" to show the most recent run of the current environment.`,
		Example: `  # Last 20 runs
  leapprep runs

  # Steps of the latest run
  leapprep runs latest

  # A specific run as YAML
  leapprep runs 6f1c... -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func runListRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := cmdCtx.Engine.StateStore().ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(runs); ok || err != nil {
		return err
	}

	if len(runs) == 0 {
		r.Println(r.Muted("No runs recorded yet. Run `leapprep run` first."))
		return nil
	}

	s := r.Styles()
	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if d := run.Duration(); d > 0 {
			duration = d.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID,
			run.Environment,
			s.StatusStyle(string(run.Status)).Render(string(run.Status)),
			r.Number(run.RowsIn),
			r.Number(run.RowsOut),
			run.StartedAt.Local().Format(time.DateTime),
			duration,
		})
	}
	r.Table([]string{"id", "env", "status", "rows in", "rows out", "started", "duration"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, id string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	store := cmdCtx.Engine.StateStore()

	run, err := lookupRun(ctx, store, id, cmdCtx.Engine.Environment())
	if err != nil {
		return err
	}
	steps, err := store.ListStepRuns(ctx, run.ID)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(runReport{Run: run, Steps: steps}); ok || err != nil {
		return err
	}
	renderRun(r, run, steps)
	return nil
}

func lookupRun(ctx context.Context, store state.Store, id, env string) (*state.Run, error) {
	if id != "latest" {
		run, err := store.GetRun(ctx, id)
		if errors.Is(err, state.ErrRunNotFound) {
			return nil, fmt.Errorf("run %q not found", id)
		}
		return run, err
	}
	run, err := store.LatestRun(ctx, env)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no runs recorded for environment %q", env)
	}
	return run, nil
}
