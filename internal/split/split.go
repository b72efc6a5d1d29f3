// Package split divides a feature table into train and test partitions for
// model fitting.
package split

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

var (
	// ErrInvalidRatio is returned when the test ratio is outside (0, 1).
	ErrInvalidRatio = errors.New("test ratio must be between 0 and 1")
	// ErrTooFewRows is returned when either partition would be empty.
	ErrTooFewRows = errors.New("too few rows to split")
)

// Options configures Split.
type Options struct {
	// Target is the label column.
	Target string
	// TestRatio is the share of rows in the test partition, rounded up.
	TestRatio float64
	// Seed makes the shuffle reproducible.
	Seed uint64
	// Drop lists columns excluded from the features. Absent names are ignored.
	Drop []string
}

// DefaultOptions returns a 70/30 split on price.
func DefaultOptions() Options {
	return Options{
		Target:    "price",
		TestRatio: 0.3,
		Seed:      42,
		Drop:      []string{"price", "sqft_price", "date", "delta_lat", "delta_long"},
	}
}

// Result holds both partitions.
type Result struct {
	TrainX *frame.Table
	TestX  *frame.Table
	TrainY *frame.Column
	TestY  *frame.Column
	// TrainRows and TestRows are the source row indices of each partition.
	TrainRows []int
	TestRows  []int
}

// Split shuffles the rows of t with the seed and assigns the first
// ceil(TestRatio * n) of them to the test partition.
func Split(t *frame.Table, opts Options) (*Result, error) {
	if !(opts.TestRatio > 0 && opts.TestRatio < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, opts.TestRatio)
	}
	target, err := t.Column(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	n := t.Len()
	nTest := int(math.Ceil(opts.TestRatio * float64(n)))
	if nTest == 0 || nTest >= n {
		return nil, fmt.Errorf("%w: %d rows at ratio %v", ErrTooFewRows, n, opts.TestRatio)
	}

	perm := rand.New(rand.NewPCG(opts.Seed, opts.Seed)).Perm(n)
	testRows, trainRows := perm[:nTest], perm[nTest:]

	drop := slices.Clone(opts.Drop)
	if !slices.Contains(drop, opts.Target) {
		drop = append(drop, opts.Target)
	}
	features := t.Without(drop...)
	labels, err := frame.FromColumns(target)
	if err != nil {
		return nil, err
	}

	r := &Result{TrainRows: trainRows, TestRows: testRows}
	if r.TrainX, err = features.Take(trainRows); err != nil {
		return nil, err
	}
	if r.TestX, err = features.Take(testRows); err != nil {
		return nil, err
	}
	trainY, err := labels.Take(trainRows)
	if err != nil {
		return nil, err
	}
	testY, err := labels.Take(testRows)
	if err != nil {
		return nil, err
	}
	r.TrainY, _ = trainY.Column(opts.Target)
	r.TestY, _ = testY.Column(opts.Target)
	return r, nil
}

// Labeled returns the train and test feature tables with the target appended
// as the last column.
func (r *Result) Labeled() (train, test *frame.Table, err error) {
	train = r.TrainX.Clone()
	if err := train.AddColumn(r.TrainY.Clone()); err != nil {
		return nil, nil, err
	}
	test = r.TestX.Clone()
	if err := test.AddColumn(r.TestY.Clone()); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
