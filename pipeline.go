package rasteriser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

const pipelineTag = "Pipeline:"

// Pipeline wires the collaborators of a run. Nil Overlay and Writer fall
// back to the pure Go implementations; Resolver is only needed for area
// code extents.
type Pipeline struct {
	Resolver BoundaryResolver
	Overlay  OverlayEngine
	Writer   RasterWriter
	Settings *Settings
}

func NewPipeline(s *Settings) *Pipeline {
	if s == nil {
		s = DefaultSettings()
	}
	return &Pipeline{
		Resolver: NewNismodResolver(s),
		Overlay:  &NativeOverlay{Workers: s.Workers},
		Writer:   NativeWriter{},
		Settings: s,
	}
}

// Result of a successful run. Data holds the encoded raster when no output
// path was requested, Path the written file otherwise.
type Result struct {
	Grid    *Grid
	Spec    RasterSpec
	Path    string
	Data    []byte
	Summary Summary
}

// Run rasterises features over the fishnet selected by opts. Every failure
// is an *Error whose Kind names the failing stage group.
func (p *Pipeline) Run(ctx context.Context, features []InputFeature, opts Options) (res *Result, err error) {
	if !opts.Valid() {
		return nil, newError(KindValidation, "options", &ValidationError{Fields: []*FieldError{
			{Field: "options", Msg: "not built by NewOptions"},
		}})
	}
	start := time.Now()
	defer func() {
		if err != nil {
			log.Error(pipelineTag+"run aborted", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		}
	}()
	log.Info(pipelineTag+"run started", zap.Stringer("extent", opts.Extent().Kind()), zap.String("scale", string(opts.Scale())),
		zap.Float64("resolution", opts.Resolution()), zap.Float64("threshold", opts.AreaThreshold()),
		zap.Bool("invert", opts.Invert()), zap.Int("features", len(features)))

	grid, extent, err := p.prepareGrid(ctx, opts)
	if err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return nil, newError(KindOverlay, "overlay", err)
	}

	overlay := p.Overlay
	if overlay == nil {
		overlay = &NativeOverlay{}
	}
	fragments, err := overlay.Intersect(ctx, grid.Cells, features)
	if err != nil {
		return nil, newError(KindOverlay, "overlay", err)
	}
	if opts.Resolution() != DefaultResolution {
		log.Warn(pipelineTag+"area normalization assumes 100m cells", zap.Float64("resolution", opts.Resolution()),
			zap.Float64("divisor", AreaNormalizationDivisor))
	}
	ClassifyGrid(grid, Aggregate(grid, fragments), opts.AreaThreshold(), opts.Invert())

	rasterExtent := extent
	if opts.CoverGrid() {
		rasterExtent = BoundingBoxFromBounds(grid.Bounds())
	}
	spec, err := NewRasterSpec(rasterExtent, opts.Resolution(), opts.NoData(), opts.Format())
	if err != nil {
		return
	}
	if spec.Width != grid.Cols || spec.Height != grid.Rows {
		log.Debug(pipelineTag+"raster and fishnet sizes differ", zap.Int("width", spec.Width), zap.Int("height", spec.Height),
			zap.Int("cols", grid.Cols), zap.Int("rows", grid.Rows))
	}

	writer := p.Writer
	if writer == nil {
		writer = NativeWriter{}
	}
	data, err := writer.Write(ctx, grid, spec, opts.Output())
	if err != nil {
		return nil, newError(KindRasterization, "rasterize", err)
	}
	res = &Result{
		Grid:    grid,
		Spec:    spec,
		Path:    opts.Output(),
		Data:    data,
		Summary: Summarize(grid),
	}
	log.Info(pipelineTag+"run finished", append(res.Summary.fields(),
		zap.String("out", res.Path), zap.Duration("elapsed", time.Since(start)))...)
	return
}

// prepareGrid returns the fishnet for the run and the extent it was built
// from.
func (p *Pipeline) prepareGrid(ctx context.Context, opts Options) (grid *Grid, extent BoundingBox, err error) {
	src := opts.Extent()
	switch src.Kind() {
	case ExtentBoundingBox:
		extent = src.BoundingBox()
	case ExtentAreaCodes:
		if extent, err = p.ResolveExtent(ctx, src.Codes(), opts.BoundaryYear()); err != nil {
			return
		}
	case ExtentFishnet:
		grid = cloneGrid(src.Fishnet())
		extent = BoundingBoxFromBounds(grid.Bounds())
		if grid.Resolution == 0 {
			grid.Resolution = opts.Resolution()
		}
		log.Info(pipelineTag+"fishnet supplied", zap.Int("cells", grid.Len()), zap.Stringer("bbox", extent))
		return
	default:
		err = newError(KindValidation, "options", fmt.Errorf("%w: unknown extent source", ErrValidation))
		return
	}
	if grid, err = BuildGrid(extent, opts.Resolution()); err != nil {
		err = newError(KindValidation, "fishnet", err)
	}
	return
}

// ResolveExtent asks the boundary service for codes and returns the extent
// of the returned geometry, bounded by Settings.ResolveTimeout.
func (p *Pipeline) ResolveExtent(ctx context.Context, codes []string, year int) (extent BoundingBox, err error) {
	if p.Resolver == nil {
		err = newError(KindBoundaryResolution, "resolve boundary", errors.New("no boundary resolver configured"))
		return
	}
	timeout := DefaultResolveTimeout
	if p.Settings != nil && p.Settings.ResolveTimeout > 0 {
		timeout = p.Settings.ResolveTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	g, err := p.Resolver.Resolve(rctx, codes, year)
	if err != nil {
		err = newError(KindBoundaryResolution, "resolve boundary", err)
		return
	}
	b := polygonalBounds(g)
	if b == nil {
		err = newError(KindBoundaryResolution, "resolve boundary", ErrEmptyGeometry)
		return
	}
	extent = BoundingBoxFromBounds(b)
	// 边界范围本身超出工作区时不能降级继续
	if verr := extent.Validate(); verr != nil {
		err = &Error{Kind: KindBoundaryResolution, Stage: "boundary extent", Err: fmt.Errorf("%s: %s", extent, verr.Error())}
		return
	}
	log.Info(pipelineTag+"boundary extent", zap.Stringer("bbox", extent))
	return
}

// cloneGrid copies the cell slice so a run never mutates a caller's grid.
func cloneGrid(g *Grid) *Grid {
	c := *g
	c.Cells = make([]Cell, len(g.Cells))
	copy(c.Cells, g.Cells)
	return &c
}
