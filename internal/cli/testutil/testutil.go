// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapprep/internal/cli/output"
)

// HousesCSV is a small raw house sales table. Row 1 lacks waterfront, row 3
// has an unknown basement and no renovation year, row 5 lacks view.
const HousesCSV = `id,date,price,sqft_living,sqft_lot,waterfront,view,sqft_above,sqft_basement,yr_built,yr_renovated,lat,long
7129300520,10/13/2014,221900.0,1180,5650,,0.0,1180,0.0,1955,0.0,47.5112,-122.257
6414100192,12/9/2014,538000.0,2570,7242,0.0,0.0,2170,400.0,1951,1991.0,47.721,-122.319
5631500400,2/25/2015,180000.0,770,10000,0.0,0.0,770,?,1933,,47.7379,-122.233
2487200875,12/9/2014,604000.0,1960,5000,0.0,0.0,1050,910.0,1965,0.0,47.5208,-122.393
1954400510,2/18/2015,510000.0,1680,8080,1.0,,1680,0.0,1987,0.0,47.6168,-122.045
7237550310,5/12/2014,1225000.0,5420,101930,1.0,4.0,3890,1530.0,2001,0.0,47.6561,-122.005
1321400060,6/27/2014,257500.0,1715,6819,0.0,0.0,1715,0.0,1995,0.0,47.3097,-122.327
2008000270,1/15/2015,291850.0,1060,9711,0.0,0.0,1060,0.0,1963,0.0,47.4095,-122.315
2414600126,4/15/2015,229500.0,1780,7470,0.0,0.0,1050,730.0,1960,0.0,47.5123,-122.337
3793500160,3/12/2015,323000.0,1890,6560,0.0,0.0,1890,0.0,2003,0.0,47.3684,-122.031
`

// HousesRows is the number of data rows in HousesCSV.
const HousesRows = 10

// Project is a temporary LeapPrep project.
type Project struct {
	Dir    string
	Input  string
	Output string
	State  string
}

// SetupTestProject creates a temporary project with a raw input table and a
// leapprep.yaml. extraConfig is appended to the config file.
func SetupTestProject(t *testing.T, extraConfig string) Project {
	t.Helper()

	tmpDir := t.TempDir()
	p := Project{
		Dir:    tmpDir,
		Input:  filepath.Join(tmpDir, "data", "houses.csv"),
		Output: filepath.Join(tmpDir, "build", "features.csv"),
		State:  filepath.Join(tmpDir, ".leapprep", "state.db"),
	}

	if err := os.MkdirAll(filepath.Dir(p.Input), 0755); err != nil {
		t.Fatalf("failed to create data directory: %v", err)
	}
	if err := os.WriteFile(p.Input, []byte(HousesCSV), 0644); err != nil {
		t.Fatalf("failed to create houses.csv: %v", err)
	}

	cfg := `input_path: data/houses.csv
output_path: build/features.csv
state_path: .leapprep/state.db
environment: test
split:
  train_path: build/train.csv
  test_path: build/test.csv
` + extraConfig
	if err := os.WriteFile(filepath.Join(tmpDir, "leapprep.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create leapprep.yaml: %v", err)
	}

	return p
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the given mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	// Check for balanced code fences
	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
