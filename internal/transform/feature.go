package transform

import (
	"context"
	"fmt"
	"math"

	"github.com/leapstack-labs/leapprep/internal/geo"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// GeoConfig holds the fixed geographic constants of the feature stage.
//
// CenterLat and CorrectionLat differ by about 0.006 degrees in the reference
// data. Both are kept as separate settings so the asymmetry stays visible.
type GeoConfig struct {
	CenterLat     float64 `koanf:"center_lat" json:"center_lat" yaml:"center_lat"`
	CenterLong    float64 `koanf:"center_long" json:"center_long" yaml:"center_long"`
	CorrectionLat float64 `koanf:"correction_lat" json:"correction_lat" yaml:"correction_lat"`
	EarthRadiusKM float64 `koanf:"earth_radius_km" json:"earth_radius_km" yaml:"earth_radius_km"`
}

// DefaultGeoConfig returns the center of wealth used for King County.
func DefaultGeoConfig() GeoConfig {
	return GeoConfig{
		CenterLat:     47.62774,
		CenterLong:    -122.24194,
		CorrectionLat: 47.6219,
		EarthRadiusKM: geo.EarthRadiusKM,
	}
}

// PricePerArea derives sqft_price = price / (sqft_living + sqft_lot), rounded
// half to even at two decimals.
type PricePerArea struct{}

func (PricePerArea) Name() string { return "price_per_area" }

func (PricePerArea) Contract() Contract {
	return Contract{
		Requires: []string{ColPrice, ColSqftLiving, ColSqftLot},
		Produces: []string{ColSqftPrice},
	}
}

func (p PricePerArea) Fit(*frame.Table) Transformer { return p }

func (PricePerArea) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if err := requireColumns(t, ColPrice, ColSqftLiving, ColSqftLot); err != nil {
		return nil, err
	}
	price, err := numeric(t, ColPrice)
	if err != nil {
		return nil, err
	}
	living, err := numeric(t, ColSqftLiving)
	if err != nil {
		return nil, err
	}
	lot, err := numeric(t, ColSqftLot)
	if err != nil {
		return nil, err
	}

	out := make([]float64, t.Len())
	for i := range out {
		if frame.IsMissing(price.Floats()[i]) || frame.IsMissing(living.Floats()[i]) || frame.IsMissing(lot.Floats()[i]) {
			return nil, fmt.Errorf("row %d: %w: price/area", i, ErrMissingValue)
		}
		area := living.Floats()[i] + lot.Floats()[i]
		if area == 0 {
			return nil, fmt.Errorf("row %d: %w", i, ErrZeroArea)
		}
		out[i] = roundHalfEven(price.Floats()[i]/area, 2)
	}
	if err := t.SetColumn(frame.NewFloat(ColSqftPrice, out)); err != nil {
		return nil, err
	}
	return t, nil
}

func roundHalfEven(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*scale) / scale
}

// CenterOfWealth derives the absolute offsets from the center of wealth and
// the corrected planar distance to it.
type CenterOfWealth struct {
	Geo GeoConfig
}

func (CenterOfWealth) Name() string { return "center_of_wealth" }

func (CenterOfWealth) Contract() Contract {
	return Contract{
		Requires: []string{ColLat, ColLong},
		Produces: []string{ColDeltaLat, ColDeltaLong, ColCenterDistance},
	}
}

func (c CenterOfWealth) Fit(*frame.Table) Transformer { return c }

func (c CenterOfWealth) Transform(_ context.Context, t *frame.Table) (*frame.Table, error) {
	if err := requireColumns(t, ColLat, ColLong); err != nil {
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
	dLat := make([]float64, n)
	dLong := make([]float64, n)
	dist := make([]float64, n)
	for i := 0; i < n; i++ {
		if frame.IsMissing(lat.Floats()[i]) || frame.IsMissing(long.Floats()[i]) {
			return nil, fmt.Errorf("row %d: %w: coordinates", i, ErrMissingValue)
		}
		dLat[i] = math.Abs(c.Geo.CenterLat - lat.Floats()[i])
		dLong[i] = math.Abs(c.Geo.CenterLong - long.Floats()[i])
		dist[i] = geo.Planar(dLong[i], dLat[i], c.Geo.CorrectionLat, c.Geo.EarthRadiusKM)
	}

	for _, col := range []*frame.Column{
		frame.NewFloat(ColDeltaLat, dLat),
		frame.NewFloat(ColDeltaLong, dLong),
		frame.NewFloat(ColCenterDistance, dist),
	} {
		if err := t.SetColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}
