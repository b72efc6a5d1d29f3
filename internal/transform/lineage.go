package transform

import (
	"fmt"

	"github.com/leapstack-labs/leapprep/internal/dag"
)

// Node kinds in a lineage graph.
const (
	NodeStep   = "step"
	NodeColumn = "column"
)

// ColumnVersion is the data of a column node: one version of a column as
// produced by a step, or as read from the input when Step is empty.
type ColumnVersion struct {
	Column string
	Step   string
}

// Lineage is the column-level data flow of a pipeline.
type Lineage struct {
	Graph *dag.Graph
	// Inputs are the raw columns the pipeline reads, in first-use order.
	Inputs []string
	// Outputs maps every surviving column written by a step to its node ID.
	Outputs map[string]string
	// Removed lists the columns the pipeline drops.
	Removed []string
}

// StepID returns the node ID of a step.
func StepID(stage, step string) string {
	return "step:" + stage + "/" + step
}

// ColumnID returns the node ID of a column version. An empty step denotes
// the raw input column.
func ColumnID(column, step string) string {
	if step == "" {
		return "column:" + column
	}
	return "column:" + column + "@" + step
}

// Lineage builds the column data-flow graph. Every column a step writes gets
// a new node, so a step that rewrites a column it reads does not form a cycle.
func (p *Pipeline) Lineage() (*Lineage, error) {
	l := &Lineage{Graph: dag.NewGraph(), Outputs: make(map[string]string)}
	current := make(map[string]string)

	for _, ref := range p.Steps() {
		stepID := StepID(ref.Stage, ref.Step)
		l.Graph.AddNode(stepID, NodeStep, ref)

		for _, col := range ref.Contract.Requires {
			src, ok := current[col]
			if !ok {
				src = ColumnID(col, "")
				l.Graph.AddNode(src, NodeColumn, ColumnVersion{Column: col})
				current[col] = src
				l.Inputs = append(l.Inputs, col)
			}
			if err := l.Graph.AddEdge(src, stepID); err != nil {
				return nil, fmt.Errorf("lineage %s: %w", ref.Step, err)
			}
		}
		for _, col := range ref.Contract.Produces {
			id := ColumnID(col, ref.Step)
			l.Graph.AddNode(id, NodeColumn, ColumnVersion{Column: col, Step: ref.Step})
			if err := l.Graph.AddEdge(stepID, id); err != nil {
				return nil, fmt.Errorf("lineage %s: %w", ref.Step, err)
			}
			current[col] = id
			l.Outputs[col] = id
		}
		for _, col := range ref.Contract.Removes {
			delete(current, col)
			delete(l.Outputs, col)
			l.Removed = append(l.Removed, col)
		}
	}

	if cyclic, path := l.Graph.HasCycle(); cyclic {
		return nil, fmt.Errorf("lineage has a cycle: %v", path)
	}
	return l, nil
}

// StepsAffecting returns the steps a column's final value depends on, in
// execution order.
func (l *Lineage) StepsAffecting(column string) ([]StepRef, error) {
	id, ok := l.Outputs[column]
	if !ok {
		return nil, fmt.Errorf("column %q is not produced by the pipeline", column)
	}
	var out []StepRef
	for _, up := range l.Graph.Upstream(id) {
		n, _ := l.Graph.Node(up)
		if ref, ok := n.Data.(StepRef); ok {
			out = append(out, ref)
		}
	}
	return out, nil
}
