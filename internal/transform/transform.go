// Package transform implements the column transformers that turn raw house
// sale records into model-ready features, and the pipeline composing them.
//
// Every transformer is stateless: Fit returns the receiver unchanged and
// Transform mutates the table it is given and returns it. A transformer owns
// the table exclusively for the duration of the call.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// Sentinel errors returned (wrapped) by transformers.
var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("required column missing")
	// ErrZeroArea is returned when sqft_living + sqft_lot is zero for a row.
	ErrZeroArea = errors.New("zero total area")
	// ErrMissingValue is returned when a value needed for a computation is missing.
	ErrMissingValue = errors.New("missing value")
	// ErrRowCountChanged is returned when a step adds or removes rows.
	ErrRowCountChanged = errors.New("row count changed")
)

// Column names of the house sale schema.
const (
	ColPrice           = "price"
	ColDate            = "date"
	ColSqftLiving      = "sqft_living"
	ColSqftLot         = "sqft_lot"
	ColSqftAbove       = "sqft_above"
	ColSqftBasement    = "sqft_basement"
	ColView            = "view"
	ColWaterfront      = "waterfront"
	ColYrBuilt         = "yr_built"
	ColYrRenovated     = "yr_renovated"
	ColLat             = "lat"
	ColLong            = "long"
	ColLastKnownChange = "last_known_change"
	ColSqftPrice       = "sqft_price"
	ColDeltaLat        = "delta_lat"
	ColDeltaLong       = "delta_long"
	ColCenterDistance  = "center_distance"
	ColWaterDistance   = "water_distance"
)

// BasementSentinel marks an unknown basement area in raw data.
const BasementSentinel = "?"

// Contract lists the columns a transformer reads, writes and removes.
type Contract struct {
	Requires []string `json:"requires" yaml:"requires"`
	Produces []string `json:"produces,omitempty" yaml:"produces,omitempty"`
	Removes  []string `json:"removes,omitempty" yaml:"removes,omitempty"`
}

// Transformer is a single table-to-table step.
type Transformer interface {
	// Name is the stable step identifier used in logs and run history.
	Name() string
	// Contract describes the columns the step touches.
	Contract() Contract
	// Fit learns nothing and returns the receiver.
	Fit(t *frame.Table) Transformer
	// Transform applies the step to t in place and returns it.
	Transform(ctx context.Context, t *frame.Table) (*frame.Table, error)
}

// StepError wraps a failure with the stage and step that produced it.
type StepError struct {
	Stage string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Stage, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// requireColumns returns ErrMissingColumn naming every absent column.
func requireColumns(t *frame.Table, names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	return nil
}

// numeric returns the named column as a numeric column, converting a string
// column in place. Missing markers and sentinel cells become missing.
func numeric(t *frame.Table, name string, sentinels ...string) (*frame.Column, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	if col.Kind().Numeric() {
		return col, nil
	}
	markers := append(append([]string(nil), frame.DefaultMissingMarkers...), sentinels...)
	conv, err := col.ToFloat(markers...)
	if err != nil {
		return nil, err
	}
	if err := t.SetColumn(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// fillMissing replaces every missing value of the named numeric column with v.
func fillMissing(t *frame.Table, name string, v float64) error {
	col, err := numeric(t, name)
	if err != nil {
		return err
	}
	values := col.Floats()
	for i := range values {
		if frame.IsMissing(values[i]) {
			values[i] = v
		}
	}
	return nil
}
