package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprep/internal/testutil"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

const houseCSV = `id,date,price,waterfront,view,sqft_basement,yr_built
7129300520,20141013T000000,221900.0,,0.0,0.0,1955
6414100192,20141209T000000,538000.0,0.0,NA,400.0,1951
5631500400,20150225T000000,180000.0,1.0,0.0,?,1933
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func column(t *testing.T, tbl *frame.Table, name string) *frame.Column {
	t.Helper()
	col, err := tbl.Column(name)
	require.NoError(t, err)
	return col
}

func TestCSVSource_Load(t *testing.T) {
	path := writeFile(t, "houses.csv", houseCSV)

	src, err := OpenSource(Config{Engine: EngineCSV, Path: path, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"id", "date", "price", "waterfront", "view", "sqft_basement", "yr_built"}, tbl.Names())
	assert.Equal(t, frame.Int, column(t, tbl, "id").Kind())
	assert.Equal(t, frame.String, column(t, tbl, "date").Kind())
	assert.Equal(t, frame.Float, column(t, tbl, "price").Kind())

	waterfront := column(t, tbl, "waterfront")
	assert.True(t, waterfront.IsMissing(0))
	assert.True(t, column(t, tbl, "view").IsMissing(1), "NA is a default missing marker")

	basement := column(t, tbl, "sqft_basement")
	assert.Equal(t, frame.String, basement.Kind(), "the ? sentinel is kept verbatim")
	assert.Equal(t, "?", basement.Cell(2))
}

func TestCSVSource_Params(t *testing.T) {
	path := writeFile(t, "houses.tsv", "a;b\n1;-\n2;3\n")

	src, err := NewCSVSource(Config{
		Path: path,
		Params: map[string]any{
			"delimiter":       ";",
			"missing_markers": []any{"-"},
		},
	})
	require.NoError(t, err)

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	b := column(t, tbl, "b")
	assert.Equal(t, frame.Float, b.Kind())
	assert.True(t, b.IsMissing(0))
}

func TestCSVSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		params  map[string]any
		wantErr string
	}{
		{name: "empty file", content: "", wantErr: "no header row"},
		{name: "ragged row", content: "a,b\n1\n", wantErr: "wrong number of fields"},
		{name: "duplicate header", content: "a,a\n1,2\n", wantErr: "duplicate header"},
		{name: "unknown param", content: "a\n1\n", params: map[string]any{"quote": "'"}, wantErr: "invalid loader params"},
		{name: "long delimiter", content: "a\n1\n", params: map[string]any{"delimiter": "::"}, wantErr: "single character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "in.csv", tt.content)
			src, err := NewCSVSource(Config{Path: path, Params: tt.params})
			if err == nil {
				_, err = src.Load(context.Background())
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	src, err := NewCSVSource(Config{Path: filepath.Join(t.TempDir(), "nope.csv")})
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSVSink_RoundTrip(t *testing.T) {
	in := writeFile(t, "houses.csv", houseCSV)
	src, err := NewCSVSource(Config{Path: in})
	require.NoError(t, err)
	tbl, err := src.Load(context.Background())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "out.csv")
	sink, err := OpenSink(Config{Engine: EngineCSV, Path: out})
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), tbl))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `id,date,price,waterfront,view,sqft_basement,yr_built
7129300520,20141013T000000,221900,,0,0.0,1955
6414100192,20141209T000000,538000,0,,400.0,1951
5631500400,20150225T000000,180000,1,0,?,1933
`, string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCSVSink_FailureLeavesDestinationUntouched(t *testing.T) {
	out := writeFile(t, "out.csv", "previous\n")
	tbl, err := frame.FromColumns(frame.NewInt("a", []float64{1}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink, err := NewCSVSink(Config{Path: out})
	require.NoError(t, err)
	require.ErrorIs(t, sink.Write(ctx, tbl), context.Canceled)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_UnknownEngine(t *testing.T) {
	_, err := OpenSource(Config{Engine: "excel"})
	var unknown *UnknownEngineError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "excel", unknown.Engine)
	assert.Equal(t, []string{EngineCSV, EngineDuckDB}, unknown.Available)
	assert.Contains(t, err.Error(), "loader.engine")
}

func TestOpenSink_ParquetUsesDuckDB(t *testing.T) {
	sink, err := OpenSink(Config{Engine: EngineCSV, Path: "out/features.parquet"})
	require.NoError(t, err)
	assert.IsType(t, &DuckDBSink{}, sink)
}

func TestDecodeParams(t *testing.T) {
	var p DuckDBParams
	err := decodeParams(map[string]any{
		"extensions": []any{"json"},
		"settings":   map[string]any{"threads": 4},
	}, &p)
	require.NoError(t, err)
	assert.Equal(t, []string{"json"}, p.Extensions)
	assert.Equal(t, map[string]string{"threads": "4"}, p.Settings)

	var empty DuckDBParams
	require.NoError(t, decodeParams(nil, &empty))
	assert.Equal(t, DuckDBParams{}, empty)
}

func TestDuckDBSource_CSVMatchesCSVEngine(t *testing.T) {
	path := writeFile(t, "houses.csv", houseCSV)

	viaCSV, err := NewCSVSource(Config{Path: path})
	require.NoError(t, err)
	want, err := viaCSV.Load(context.Background())
	require.NoError(t, err)

	viaDuck, err := NewDuckDBSource(Config{Path: path, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	got, err := viaDuck.Load(context.Background())
	require.NoError(t, err)

	wh, wr := want.Records()
	gh, gr := got.Records()
	assert.Equal(t, wh, gh)
	assert.Equal(t, wr, gr)
}

func TestDuckDBSink_ParquetRoundTrip(t *testing.T) {
	tbl, err := frame.FromColumns(
		frame.NewInt("id", []float64{1, 2}),
		frame.NewFloat("water_distance", []float64{0, 19.78}),
	)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "features.parquet")
	sink, err := NewDuckDBSink(Config{Path: out})
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), tbl))

	src, err := NewDuckDBSource(Config{Path: out})
	require.NoError(t, err)
	back, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "water_distance"}, back.Names())
	assert.Equal(t, []float64{0, 19.78}, column(t, back, "water_distance").Floats())

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging files are removed")
}

func TestDuckDBSink_CSVOutput(t *testing.T) {
	tbl, err := frame.FromColumns(
		frame.NewInt("id", []float64{1, 2}),
		frame.NewFloat("water_distance", []float64{0, 19.78}),
	)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "features.csv")
	sink, err := OpenSink(Config{Engine: EngineDuckDB, Path: out})
	require.NoError(t, err)
	require.IsType(t, &DuckDBSink{}, sink)
	require.NoError(t, sink.Write(context.Background(), tbl))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEqual(t, "PAR1", string(raw[:4]), "csv path gets csv bytes")
	assert.Equal(t, "id,water_distance", string(raw[:len("id,water_distance")]))

	src, err := NewCSVSource(Config{Path: out})
	require.NoError(t, err)
	back, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 19.78}, column(t, back, "water_distance").Floats())
}
