package rasteriser

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/ctessum/geom"
	"github.com/wgdzlh/rasteriser/log"
	"github.com/wgdzlh/rasteriser/utils"
	"go.uber.org/zap"
)

const rasterTag = "Raster:"

// dimEpsilon absorbs representation error so that e.g. 300/100 floors to 3.
const dimEpsilon = 1e-9

// RasterWriter burns the Include bit of every cell of a classified grid
// into a single band raster. With out == "" the encoded raster is returned
// instead of written.
type RasterWriter interface {
	Write(ctx context.Context, grid *Grid, spec RasterSpec, out string) ([]byte, error)
}

// RasterSpec fixes the size and georeferencing of the output raster.
type RasterSpec struct {
	Width        int
	Height       int
	GeoTransform [6]float64 // xmin, res, 0, ymax, 0, -res
	SRID         int
	NoData       uint8
	Format       OutputFormat
}

// NewRasterSpec derives the raster for extent. Width and height use floor
// division, so when extent is not a whole number of cells the raster is
// smaller than the fishnet covering it; pass the fishnet bounds as extent
// to make the two agree.
func NewRasterSpec(extent BoundingBox, resolution float64, nodata uint8, format OutputFormat) (spec RasterSpec, err error) {
	spec = RasterSpec{
		Width:        int(math.Floor(extent.Width()/resolution + dimEpsilon)),
		Height:       int(math.Floor(extent.Height()/resolution + dimEpsilon)),
		GeoTransform: [6]float64{extent.XMin, resolution, 0, extent.YMax, 0, -resolution},
		SRID:         BNG_SRID,
		NoData:       nodata,
		Format:       format,
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		err = newError(KindRasterization, "raster spec", fmt.Errorf("%w: %dx%d", ErrEmptyRaster, spec.Width, spec.Height))
	}
	return
}

func (s RasterSpec) Resolution() float64 { return s.GeoTransform[1] }

// Extent is the area actually covered by the raster pixels.
func (s RasterSpec) Extent() BoundingBox {
	res := s.Resolution()
	return BoundingBox{
		XMin: s.GeoTransform[0],
		YMin: s.GeoTransform[3] - float64(s.Height)*res,
		XMax: s.GeoTransform[0] + float64(s.Width)*res,
		YMax: s.GeoTransform[3],
	}
}

// Burn fills a row-major pixel buffer with spec.NoData and writes each
// cell's Include bit into the pixels whose centres it covers. Cells are
// burnt in slice order, so later cells win on overlap.
func Burn(grid *Grid, spec RasterSpec) []byte {
	w, h := spec.Width, spec.Height
	px := make([]byte, w*h)
	for i := range px {
		px[i] = spec.NoData
	}
	xmin, ymax, res := spec.GeoTransform[0], spec.GeoTransform[3], spec.Resolution()
	for ci := range grid.Cells {
		c := &grid.Cells[ci]
		b := c.Bounds()
		if b == nil {
			continue
		}
		i0 := clampInt(int(math.Ceil((b.Min.X-xmin)/res-0.5)), 0, w)
		i1 := clampInt(int(math.Ceil((b.Max.X-xmin)/res-0.5)), 0, w)
		j0 := clampInt(int(math.Ceil((ymax-b.Max.Y)/res-0.5)), 0, h)
		j1 := clampInt(int(math.Ceil((ymax-b.Min.Y)/res-0.5)), 0, h)
		_, rect := isRect(c.Geom)
		for j := j0; j < j1; j++ {
			row := px[j*w : (j+1)*w]
			y := ymax - (float64(j)+0.5)*res
			for i := i0; i < i1; i++ {
				if !rect && !containsPoint(c.Geom, geom.Point{X: xmin + (float64(i)+0.5)*res, Y: y}) {
					continue
				}
				row[i] = c.Include
			}
		}
	}
	return px
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// containsPoint is an even-odd test over all rings of p.
func containsPoint(p geom.Polygon, pt geom.Point) (in bool) {
	for _, ring := range p {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			a, b := ring[i], ring[j]
			if (a.Y > pt.Y) != (b.Y > pt.Y) && pt.X < (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y)+a.X {
				in = !in
			}
		}
	}
	return
}

// NativeWriter is a pure Go RasterWriter producing GeoTIFF or Esri ASCII
// grid output.
type NativeWriter struct{}

func (NativeWriter) Write(ctx context.Context, grid *Grid, spec RasterSpec, out string) (data []byte, err error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, newError(KindRasterization, "burn", ErrEmptyRaster)
	}
	log.Info(rasterTag+"burn cells", zap.Int("cells", grid.Len()), zap.Int("width", spec.Width), zap.Int("height", spec.Height),
		zap.Uint8("nodata", spec.NoData), zap.String("format", string(spec.Format)))
	px := Burn(grid, spec)
	if err = ctx.Err(); err != nil {
		return nil, newError(KindRasterization, "burn", err)
	}
	switch spec.Format {
	case FormatASCII:
		data, err = EncodeASCIIGrid(spec, px)
	case FormatGeoTIFF:
		data, err = EncodeGeoTIFF(spec, px)
	default:
		err = fmt.Errorf("unsupported format %q", spec.Format)
	}
	if err != nil {
		return nil, newError(KindRasterization, "encode", err)
	}
	if out == "" {
		return
	}
	if err = WriteOutput(out, data); err != nil {
		return nil, err
	}
	log.Info(rasterTag+"raster written", zap.String("out", out), zap.Int("bytes", len(data)))
	return nil, nil
}

// WriteOutput writes data next to out and renames it into place, so an
// existing file at out is only removed once the new one is complete.
func WriteOutput(out string, data []byte) (err error) {
	if err = utils.EnsureParentDir(out); err != nil {
		return newError(KindIO, "create output dir", err)
	}
	tmp := utils.TempSibling(out)
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return newError(KindIO, "write output", err)
	}
	if err = utils.ReplaceFile(tmp, out); err != nil {
		return newError(KindIO, "replace output", err)
	}
	return
}
