package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapprep/internal/transform"
	"github.com/spf13/cobra"
)

// StepsOptions holds options for the steps command.
type StepsOptions struct {
	Column string
}

// NewStepsCommand creates the steps command.
func NewStepsCommand() *cobra.Command {
	opts := &StepsOptions{}

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List pipeline steps and the columns they touch",
		Long: `List every pipeline step in execution order with the columns it reads,
writes and removes.

Use --column to show only the steps the final value of a column depends on.`,
		Example: `  # All steps
  leapprep steps

  # Steps that feed the water_distance column
  leapprep steps --column water_distance`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSteps(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Column, "column", "", "Only show steps the column depends on")

	return cmd
}

// stepsReport is the structured form of the step listing.
type stepsReport struct {
	Steps   []transform.StepRef `json:"steps" yaml:"steps"`
	Inputs  []string            `json:"inputs" yaml:"inputs"`
	Removed []string            `json:"removed,omitempty" yaml:"removed,omitempty"`
}

func runSteps(cmd *cobra.Command, opts *StepsOptions) error {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return err
	}

	p, err := transform.NewPipeline(cmdCtx.Cfg.Pipeline.Options())
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	lineage, err := p.Lineage()
	if err != nil {
		return err
	}

	steps := p.Steps()
	if opts.Column != "" {
		if steps, err = lineage.StepsAffecting(opts.Column); err != nil {
			return err
		}
	}

	r := cmdCtx.Renderer
	report := stepsReport{Steps: steps, Inputs: lineage.Inputs, Removed: lineage.Removed}
	if ok, err := r.Structured(report); ok || err != nil {
		return err
	}

	title := fmt.Sprintf("Steps (%d total)", len(steps))
	if opts.Column != "" {
		title = fmt.Sprintf("Steps affecting %s (%d)", opts.Column, len(steps))
	}
	r.Header(1, title)

	rows := make([][]string, 0, len(steps))
	for i, ref := range steps {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			ref.Stage,
			ref.Step,
			strings.Join(ref.Contract.Requires, ", "),
			strings.Join(ref.Contract.Produces, ", "),
			strings.Join(ref.Contract.Removes, ", "),
		})
	}
	r.Table([]string{"#", "stage", "step", "reads", "writes", "removes"}, rows)

	if opts.Column == "" {
		r.Println(r.Muted("Input columns: " + strings.Join(lineage.Inputs, ", ")))
	}
	return nil
}
