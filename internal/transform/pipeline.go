package transform

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/leapstack-labs/leapprep/internal/geo"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// Stage names.
const (
	StageCleaning = "cleaning"
	StageFeature  = "feature"
)

// Observer is notified around every step a pipeline runs.
type Observer interface {
	StepStarted(stage, step string, rows int)
	StepFinished(stage, step string, rows int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) StepStarted(string, string, int)                        {}
func (nopObserver) StepFinished(string, string, int, time.Duration, error) {}

// Stage is an ordered composition of transformers. A Stage is itself a
// Transformer.
type Stage struct {
	name  string
	steps []Transformer
}

// NewStage creates a stage running steps in order.
func NewStage(name string, steps ...Transformer) *Stage {
	return &Stage{name: name, steps: steps}
}

// NewCleaningStage returns the five cleaning steps in their fixed order.
func NewCleaningStage() *Stage {
	return NewStage(StageCleaning,
		ViewImputer{},
		BasementFixer{},
		WaterfrontImputer{},
		LastKnownChange{},
		DefaultDropColumns(),
	)
}

// NewFeatureStage returns the three feature steps in their fixed order.
func NewFeatureStage(g GeoConfig, water WaterDistance) *Stage {
	return NewStage(StageFeature,
		PricePerArea{},
		CenterOfWealth{Geo: g},
		water,
	)
}

// Name implements Transformer.
func (s *Stage) Name() string { return s.name }

// Steps returns the stage's transformers in order.
func (s *Stage) Steps() []Transformer { return append([]Transformer(nil), s.steps...) }

// Contract merges the step contracts. Requires lists only columns that no
// earlier step produced.
func (s *Stage) Contract() Contract {
	var c Contract
	produced := make(map[string]bool)
	for _, step := range s.steps {
		sc := step.Contract()
		for _, r := range sc.Requires {
			if !produced[r] && !slices.Contains(c.Requires, r) {
				c.Requires = append(c.Requires, r)
			}
		}
		for _, p := range sc.Produces {
			produced[p] = true
			if !slices.Contains(c.Produces, p) {
				c.Produces = append(c.Produces, p)
			}
		}
		c.Removes = append(c.Removes, sc.Removes...)
	}
	return c
}

// Fit implements Transformer.
func (s *Stage) Fit(t *frame.Table) Transformer {
	for _, step := range s.steps {
		step.Fit(t)
	}
	return s
}

// Transform implements Transformer.
func (s *Stage) Transform(ctx context.Context, t *frame.Table) (*frame.Table, error) {
	return s.run(ctx, t, false, nopObserver{}, slog.New(slog.DiscardHandler))
}

func (s *Stage) run(ctx context.Context, t *frame.Table, fit bool, obs Observer, logger *slog.Logger) (*frame.Table, error) {
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Stage: s.name, Step: step.Name(), Err: err}
		}

		rows := t.Len()
		obs.StepStarted(s.name, step.Name(), rows)
		logger.Debug("running step", "stage", s.name, "step", step.Name(), "rows", rows)
		start := time.Now()

		if fit {
			step = step.Fit(t)
		}
		out, err := step.Transform(ctx, t)
		if err == nil && out.Len() != rows {
			err = fmt.Errorf("%w: %d -> %d", ErrRowCountChanged, rows, out.Len())
		}
		elapsed := time.Since(start)
		obs.StepFinished(s.name, step.Name(), rows, elapsed, err)

		if err != nil {
			logger.Debug("step failed", "stage", s.name, "step", step.Name(), "error", err)
			return nil, &StepError{Stage: s.name, Step: step.Name(), Err: err}
		}
		t = out
	}
	return t, nil
}

// Options configures NewPipeline.
type Options struct {
	Geo GeoConfig
	// Projection names the pairwise distance used by water_distance.
	Projection string
	// IndexKind names the nearest-waterfront search strategy.
	IndexKind string
	// Workers bounds the water_distance fan-out; 0 means GOMAXPROCS.
	Workers int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		Geo:        DefaultGeoConfig(),
		Projection: "equirectangular",
		IndexKind:  geo.IndexKDTree,
	}
}

// Pipeline runs the cleaning stage followed by the feature stage.
type Pipeline struct {
	stages   []*Stage
	logger   *slog.Logger
	observer Observer
}

// NewPipeline builds the standard two-stage pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	proj, err := geo.ProjectionByName(opts.Projection, opts.Geo.EarthRadiusKM)
	if err != nil {
		return nil, err
	}
	water := WaterDistance{Projection: proj, IndexKind: opts.IndexKind, Workers: opts.Workers}
	return NewPipelineWithStages(opts.Logger, NewCleaningStage(), NewFeatureStage(opts.Geo, water)), nil
}

// NewPipelineWithStages builds a pipeline from arbitrary stages.
func NewPipelineWithStages(logger *slog.Logger, stages ...*Stage) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{stages: stages, logger: logger, observer: nopObserver{}}
}

// WithObserver returns a shallow copy of p reporting to obs.
func (p *Pipeline) WithObserver(obs Observer) *Pipeline {
	cp := *p
	if obs == nil {
		obs = nopObserver{}
	}
	cp.observer = obs
	return &cp
}

// Stages returns the pipeline stages in order.
func (p *Pipeline) Stages() []*Stage { return append([]*Stage(nil), p.stages...) }

// StepRef identifies a step within its stage.
type StepRef struct {
	Stage    string   `json:"stage" yaml:"stage"`
	Step     string   `json:"step" yaml:"step"`
	Contract Contract `json:"contract" yaml:"contract"`
}

// Steps lists every step of every stage in execution order.
func (p *Pipeline) Steps() []StepRef {
	var out []StepRef
	for _, s := range p.stages {
		for _, step := range s.steps {
			out = append(out, StepRef{Stage: s.name, Step: step.Name(), Contract: step.Contract()})
		}
	}
	return out
}

// FitTransform fits every step and transforms t through all stages.
func (p *Pipeline) FitTransform(ctx context.Context, t *frame.Table) (*frame.Table, error) {
	return p.run(ctx, t, true)
}

// Transform runs t through all stages without fitting.
func (p *Pipeline) Transform(ctx context.Context, t *frame.Table) (*frame.Table, error) {
	return p.run(ctx, t, false)
}

func (p *Pipeline) run(ctx context.Context, t *frame.Table, fit bool) (*frame.Table, error) {
	p.logger.Debug("pipeline started", "rows", t.Len(), "columns", t.Width(), "fit", fit)
	start := time.Now()
	for _, s := range p.stages {
		var err error
		t, err = s.run(ctx, t, fit, p.observer, p.logger)
		if err != nil {
			return nil, err
		}
	}
	p.logger.Debug("pipeline finished", "rows", t.Len(), "columns", t.Width(), "elapsed", time.Since(start))
	return t, nil
}
