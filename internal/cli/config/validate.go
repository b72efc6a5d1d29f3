package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapprep/internal/cli/output"
	"github.com/leapstack-labs/leapprep/internal/dataset"
	"github.com/leapstack-labs/leapprep/internal/geo"
	"github.com/leapstack-labs/leapprep/internal/logging"
)

// Validate checks enums and ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.InputPath == "" {
		errs = append(errs, errors.New("input_path is required"))
	}
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	if engines := dataset.Engines(); !slices.Contains(engines, c.Loader.Engine) {
		errs = append(errs, fmt.Errorf("loader.engine: unknown engine %q (available: %s)",
			c.Loader.Engine, strings.Join(engines, ", ")))
	}
	for _, row := range c.Loader.DropRows {
		if row < 0 {
			errs = append(errs, fmt.Errorf("loader.drop_rows: negative row index %d", row))
		}
	}

	p := c.Pipeline
	if p.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers: must be >= 0, got %d", p.Workers))
	}
	switch p.WaterIndex {
	case "", geo.IndexKDTree, geo.IndexBrute:
	default:
		errs = append(errs, fmt.Errorf("pipeline.water_index: must be %s or %s, got %q",
			geo.IndexKDTree, geo.IndexBrute, p.WaterIndex))
	}
	if _, err := geo.ProjectionByName(p.Projection, p.Geo.EarthRadiusKM); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.projection: %w", err))
	}
	if p.Geo.EarthRadiusKM <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.geo.earth_radius_km: must be > 0, got %v", p.Geo.EarthRadiusKM))
	}
	if lat := p.Geo.CenterLat; lat < -90 || lat > 90 {
		errs = append(errs, fmt.Errorf("pipeline.geo.center_lat: must be within [-90, 90], got %v", lat))
	}
	if lat := p.Geo.CorrectionLat; lat < -90 || lat > 90 {
		errs = append(errs, fmt.Errorf("pipeline.geo.correction_lat: must be within [-90, 90], got %v", lat))
	}
	if p.Geo.CenterLong < -180 || p.Geo.CenterLong > 180 {
		errs = append(errs, fmt.Errorf("pipeline.geo.center_long: must be within [-180, 180], got %v", p.Geo.CenterLong))
	}

	if c.Split.Target == "" {
		errs = append(errs, errors.New("split.target is required"))
	}
	if !(c.Split.TestRatio > 0 && c.Split.TestRatio < 1) {
		errs = append(errs, fmt.Errorf("split.test_ratio: must be between 0 and 1, got %v", c.Split.TestRatio))
	}

	return errors.Join(errs...)
}
