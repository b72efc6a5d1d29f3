package transform

import (
	"context"
	"fmt"
	"math"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// ViewImputer replaces missing view scores with 0.
type ViewImputer struct{}

func (ViewImputer) Name() string { return "view_imputer" }

func (ViewImputer) Contract() Contract {
	return Contract{Requires: []string{ColView}, Produces: []string{ColView}}
}

func (v ViewImputer) Fit(*frame.Table) Transformer { return v }

func (ViewImputer) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if err := fillMissing(t, ColView, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// BasementFixer turns the basement area into a number and then recomputes it
// from the living and above-ground areas for every row, so values that were
// present are overwritten too.
type BasementFixer struct{}

func (BasementFixer) Name() string { return "basement_fixer" }

func (BasementFixer) Contract() Contract {
	return Contract{
		Requires: []string{ColSqftBasement, ColSqftLiving, ColSqftAbove},
		Produces: []string{ColSqftBasement},
	}
}

func (b BasementFixer) Fit(*frame.Table) Transformer { return b }

func (BasementFixer) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if err := requireColumns(t, ColSqftBasement, ColSqftLiving, ColSqftAbove); err != nil {
		return nil, err
	}
	if _, err := numeric(t, ColSqftBasement, BasementSentinel); err != nil {
		return nil, err
	}
	living, err := numeric(t, ColSqftLiving)
	if err != nil {
		return nil, err
	}
	above, err := numeric(t, ColSqftAbove)
	if err != nil {
		return nil, err
	}

	out := make([]float64, t.Len())
	for i := range out {
		out[i] = living.Floats()[i] - above.Floats()[i]
	}
	if err := t.SetColumn(frame.NewFloat(ColSqftBasement, out)); err != nil {
		return nil, err
	}
	return t, nil
}

// WaterfrontImputer replaces missing waterfront flags with 0.
type WaterfrontImputer struct{}

func (WaterfrontImputer) Name() string { return "waterfront_imputer" }

func (WaterfrontImputer) Contract() Contract {
	return Contract{Requires: []string{ColWaterfront}, Produces: []string{ColWaterfront}}
}

func (w WaterfrontImputer) Fit(*frame.Table) Transformer { return w }

func (WaterfrontImputer) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if err := fillMissing(t, ColWaterfront, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// LastKnownChange derives the year of the last known change to a house: the
// renovation year when there was one, the construction year otherwise.
//
// A table that already carries last_known_change and no source columns has
// been cleaned before and is left as is.
type LastKnownChange struct{}

func (LastKnownChange) Name() string { return "last_known_change" }

func (LastKnownChange) Contract() Contract {
	return Contract{
		Requires: []string{ColYrRenovated, ColYrBuilt},
		Produces: []string{ColLastKnownChange},
	}
}

func (l LastKnownChange) Fit(*frame.Table) Transformer { return l }

func (LastKnownChange) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if t.Has(ColLastKnownChange) && !t.Has(ColYrRenovated) && !t.Has(ColYrBuilt) {
		return t, nil
	}
	if err := requireColumns(t, ColYrRenovated, ColYrBuilt); err != nil {
		return nil, err
	}
	renovated, err := numeric(t, ColYrRenovated)
	if err != nil {
		return nil, err
	}
	built, err := numeric(t, ColYrBuilt)
	if err != nil {
		return nil, err
	}

	out := make([]float64, t.Len())
	for i := range out {
		r := renovated.Floats()[i]
		if frame.IsMissing(r) || r == 0 {
			out[i] = built.Floats()[i]
			continue
		}
		out[i] = math.Trunc(r)
	}
	if err := t.SetColumn(frame.NewInt(ColLastKnownChange, out)); err != nil {
		return nil, err
	}
	return t, nil
}

// DropColumns removes a fixed set of columns. If none of them is present the
// table is returned unchanged; a partial match is an error.
type DropColumns struct {
	Columns []string
}

// DefaultDropColumns drops the year columns folded into last_known_change.
func DefaultDropColumns() DropColumns {
	return DropColumns{Columns: []string{ColYrRenovated, ColYrBuilt}}
}

func (DropColumns) Name() string { return "drop_columns" }

func (d DropColumns) Contract() Contract {
	return Contract{Requires: d.Columns, Removes: d.Columns}
}

func (d DropColumns) Fit(*frame.Table) Transformer { return d }

func (d DropColumns) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	present := 0
	for _, c := range d.Columns {
		if t.Has(c) {
			present++
		}
	}
	if present == 0 {
		return t, nil
	}
	if err := requireColumns(t, d.Columns...); err != nil {
		return nil, err
	}
	if err := t.Drop(d.Columns...); err != nil {
		return nil, fmt.Errorf("drop columns: %w", err)
	}
	return t, nil
}
