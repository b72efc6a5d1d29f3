package transform

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapprep/internal/geo"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// ErrNoWaterfront is returned when no row is flagged waterfront == 1.
var ErrNoWaterfront = geo.ErrNoWaterfront

// WaterDistance derives water_distance, the distance from every row to the
// nearest row flagged waterfront == 1. Waterfront rows get 0.
type WaterDistance struct {
	// Projection measures pairwise distances. Defaults to geo.Equirectangular.
	Projection geo.Projection
	// IndexKind selects the search strategy, see geo.NewIndex.
	IndexKind string
	// Workers bounds the number of goroutines; 0 means GOMAXPROCS.
	Workers int
}

// chunkSize is the number of rows a worker handles between context checks.
const chunkSize = 1024

func (WaterDistance) Name() string { return "water_distance" }

func (WaterDistance) Contract() Contract {
	return Contract{
		Requires: []string{ColWaterfront, ColLat, ColLong},
		Produces: []string{ColWaterDistance},
	}
}

func (w WaterDistance) Fit(*frame.Table) Transformer { return w }

func (w WaterDistance) Transform(ctx context.Context, t *frame.Table) (*frame.Table, error) {
	if err := requireColumns(t, ColWaterfront, ColLat, ColLong); err != nil {
		return nil, err
	}
	flags, err := numeric(t, ColWaterfront)
	if err != nil {
		return nil, err
	}
	lat, err := numeric(t, ColLat)
	if err != nil {
		return nil, err
	}
	long, err := numeric(t, ColLong)
	if err != nil {
		return nil, err
	}

	n := t.Len()
	points := make([]geo.Point, n)
	var refs []geo.Point
	for i := 0; i < n; i++ {
		points[i] = geo.Point{Long: long.Floats()[i], Lat: lat.Floats()[i]}
		if frame.IsMissing(points[i].Long) || frame.IsMissing(points[i].Lat) {
			return nil, fmt.Errorf("row %d: %w: coordinates", i, ErrMissingValue)
		}
		if flags.Floats()[i] == 1 {
			refs = append(refs, points[i])
		}
	}

	proj := w.Projection
	if proj == nil {
		proj = geo.Equirectangular{}
	}
	index, err := geo.NewIndex(w.IndexKind, refs, proj)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers())
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				d, err := index.Nearest(points[i])
				if err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
				out[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := t.SetColumn(frame.NewFloat(ColWaterDistance, out)); err != nil {
		return nil, err
	}
	return t, nil
}

func (w WaterDistance) workers() int {
	if w.Workers > 0 {
		return w.Workers
	}
	return runtime.GOMAXPROCS(0)
}
