package transform

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

var nan = math.NaN()

func table(t *testing.T, cols ...*frame.Column) *frame.Table {
	t.Helper()
	tbl, err := frame.FromColumns(cols...)
	require.NoError(t, err)
	return tbl
}

func floats(t *testing.T, tbl *frame.Table, name string) []float64 {
	t.Helper()
	col, err := tbl.Column(name)
	require.NoError(t, err)
	require.True(t, col.Kind().Numeric(), "column %s is %s", name, col.Kind())
	return col.Floats()
}

func TestViewImputer(t *testing.T) {
	tbl := table(t, frame.NewFloat(ColView, []float64{1, nan, 3}))

	out, err := ViewImputer{}.Transform(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 3}, floats(t, out, ColView))
}

func TestViewImputer_StringColumn(t *testing.T) {
	tbl := table(t, frame.NewString(ColView, []string{"1", "", "3"}))

	out, err := ViewImputer{}.Transform(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 3}, floats(t, out, ColView))
}

func TestWaterfrontImputer(t *testing.T) {
	tbl := table(t, frame.NewFloat(ColWaterfront, []float64{1, nan, 0}))

	out, err := WaterfrontImputer{}.Transform(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, floats(t, out, ColWaterfront))
}

func TestBasementFixer(t *testing.T) {
	tbl := table(t,
		frame.NewFloat(ColSqftLiving, []float64{1000, 1500, 1200}),
		frame.NewFloat(ColSqftAbove, []float64{800, 1000, 900}),
		frame.NewString(ColSqftBasement, []string{"200", "?", "300"}),
	)

	out, err := BasementFixer{}.Transform(context.Background(), tbl)
	require.NoError(t, err)

	col, err := out.Column(ColSqftBasement)
	require.NoError(t, err)
	assert.Equal(t, frame.Float, col.Kind())
	assert.Equal(t, []float64{200, 500, 300}, col.Floats())
	assert.Equal(t, []string{ColSqftLiving, ColSqftAbove, ColSqftBasement}, out.Names(), "column keeps its position")
}

func TestBasementFixer_OverwritesPresentValues(t *testing.T) {
	tbl := table(t,
		frame.NewFloat(ColSqftLiving, []float64{2000}),
		frame.NewFloat(ColSqftAbove, []float64{1200}),
		frame.NewString(ColSqftBasement, []string{"0.0"}),
	)

	out, err := BasementFixer{}.Transform(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{800}, floats(t, out, ColSqftBasement))
}

func TestBasementFixer_MixedMarkers(t *testing.T) {
	loaded, err := frame.FromRecords(
		[]string{ColSqftLiving, ColSqftAbove, ColSqftBasement},
		[][]string{{"1000", "800", "?"}, {"1500", "1000", "NA"}, {"1200", "1100", "100"}},
		frame.RecordOptions{},
	)
	require.NoError(t, err)
	col, err := loaded.Column(ColSqftBasement)
	require.NoError(t, err)
	require.Equal(t, frame.String, col.Kind(), "sentinel keeps the column as text")

	out, err := BasementFixer{}.Transform(context.Background(), loaded)
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 500, 100}, floats(t, out, ColSqftBasement))
}

func TestBasementFixer_Errors(t *testing.T) {
	tbl := table(t,
		frame.NewFloat(ColSqftLiving, []float64{2000}),
		frame.NewString(ColSqftBasement, []string{"0.0"}),
	)
	_, err := BasementFixer{}.Transform(context.Background(), tbl)
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), ColSqftAbove)

	tbl = table(t,
		frame.NewFloat(ColSqftLiving, []float64{2000}),
		frame.NewFloat(ColSqftAbove, []float64{1200}),
		frame.NewString(ColSqftBasement, []string{"n/a"}),
	)
	_, err = BasementFixer{}.Transform(context.Background(), tbl)
	require.ErrorIs(t, err, frame.ErrNotNumeric)
}

func TestLastKnownChange(t *testing.T) {
	tbl := table(t,
		frame.NewFloat(ColYrRenovated, []float64{0, nan, 2000}),
		frame.NewInt(ColYrBuilt, []float64{1980, 1990, 2010}),
	)

	out, err := LastKnownChange{}.Transform(context.Background(), tbl)
	require.NoError(t, err)

	col, err := out.Column(ColLastKnownChange)
	require.NoError(t, err)
	assert.Equal(t, frame.Int, col.Kind())
	assert.Equal(t, []float64{1980, 1990, 2000}, col.Floats())
	assert.Equal(t, "2000", col.Cell(2))
}

func TestLastKnownChange_TruncatesRenovationYear(t *testing.T) {
	tbl := table(t,
		frame.NewFloat(ColYrRenovated, []float64{1991.0}),
		frame.NewInt(ColYrBuilt, []float64{1951}),
	)

	out, err := LastKnownChange{}.Transform(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{1991}, floats(t, out, ColLastKnownChange))
}

func TestLastKnownChange_MissingColumn(t *testing.T) {
	tbl := table(t, frame.NewInt(ColYrBuilt, []float64{1951}))

	_, err := LastKnownChange{}.Transform(context.Background(), tbl)
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestDropColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []*frame.Column
		want    []string
		wantErr error
	}{
		{
			name: "drops both",
			columns: []*frame.Column{
				frame.NewInt("id", []float64{1}),
				frame.NewInt(ColYrBuilt, []float64{1951}),
				frame.NewFloat(ColYrRenovated, []float64{0}),
			},
			want: []string{"id"},
		},
		{
			name:    "already dropped",
			columns: []*frame.Column{frame.NewInt("id", []float64{1})},
			want:    []string{"id"},
		},
		{
			name: "one missing",
			columns: []*frame.Column{
				frame.NewInt("id", []float64{1}),
				frame.NewInt(ColYrBuilt, []float64{1951}),
			},
			wantErr: ErrMissingColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DefaultDropColumns().Transform(context.Background(), table(t, tt.columns...))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Names())
		})
	}
}

func rawCleaningTable(t *testing.T) *frame.Table {
	t.Helper()
	return table(t,
		frame.NewFloat(ColView, []float64{0, nan, 2}),
		frame.NewFloat(ColSqftLiving, []float64{1180, 2570, 770}),
		frame.NewFloat(ColSqftAbove, []float64{1180, 2170, 770}),
		frame.NewString(ColSqftBasement, []string{"0.0", "400.0", "?"}),
		frame.NewFloat(ColWaterfront, []float64{nan, 0, 1}),
		frame.NewInt(ColYrBuilt, []float64{1955, 1951, 1933}),
		frame.NewFloat(ColYrRenovated, []float64{0, 1991, nan}),
	)
}

func TestCleaningStage(t *testing.T) {
	out, err := NewCleaningStage().Transform(context.Background(), rawCleaningTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{ColView, ColSqftLiving, ColSqftAbove, ColSqftBasement, ColWaterfront, ColLastKnownChange}, out.Names())
	assert.Equal(t, []float64{0, 0, 2}, floats(t, out, ColView))
	assert.Equal(t, []float64{0, 400, 0}, floats(t, out, ColSqftBasement))
	assert.Equal(t, []float64{0, 0, 1}, floats(t, out, ColWaterfront))
	assert.Equal(t, []float64{1955, 1991, 1933}, floats(t, out, ColLastKnownChange))
}

func TestCleaningStage_Idempotent(t *testing.T) {
	stage := NewCleaningStage()
	once, err := stage.Transform(context.Background(), rawCleaningTable(t))
	require.NoError(t, err)
	snapshot := once.Clone()

	twice, err := stage.Transform(context.Background(), once)
	require.NoError(t, err)

	for _, name := range []string{ColSqftBasement, ColView, ColWaterfront, ColLastKnownChange} {
		assert.Equal(t, floats(t, snapshot, name), floats(t, twice, name), name)
	}
	assert.Equal(t, snapshot.Names(), twice.Names())
}

func TestCleaningStage_NoMissingAfterCleaning(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// -1 encodes a missing cell.
	cell := gen.IntRange(-1, 4)

	properties.Property("view and waterfront have no missing values after cleaning", prop.ForAll(
		func(views, flags []int) bool {
			n := min(len(views), len(flags))
			view := make([]float64, n)
			water := make([]float64, n)
			ones := make([]float64, n)
			for i := 0; i < n; i++ {
				view[i], water[i], ones[i] = float64(views[i]), float64(flags[i]%2), 1
				if views[i] < 0 {
					view[i] = nan
				}
				if flags[i] < 0 {
					water[i] = nan
				}
			}
			basement := make([]string, n)
			tbl := table(t,
				frame.NewFloat(ColView, view),
				frame.NewFloat(ColSqftLiving, ones),
				frame.NewFloat(ColSqftAbove, ones),
				frame.NewString(ColSqftBasement, basement),
				frame.NewFloat(ColWaterfront, water),
				frame.NewFloat(ColYrBuilt, ones),
				frame.NewFloat(ColYrRenovated, ones),
			)

			out, err := NewCleaningStage().Transform(context.Background(), tbl)
			if err != nil || out.Len() != n {
				return false
			}
			for _, name := range []string{ColView, ColWaterfront, ColSqftBasement} {
				col, err := out.Column(name)
				if err != nil || col.MissingCount() != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(cell),
		gen.SliceOf(cell),
	))

	properties.TestingRun(t)
}
