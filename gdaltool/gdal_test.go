package gdaltool

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/lukeroth/gdal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rst "github.com/wgdzlh/rasteriser"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

func ringArea(ring geom.Path) (a float64) {
	for i := range ring {
		p, q := ring[i], ring[(i+1)%len(ring)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func classifiedGrid(t *testing.T) *rst.Grid {
	grid, err := rst.BuildGrid(rst.BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	rst.ClassifyGrid(grid, map[int]float64{1: 100}, 50, true)
	return grid
}

func TestGridShapefileRoundTrip(t *testing.T) {
	g := NewGdalToolbox(t.TempDir())
	grid := classifiedGrid(t)
	shp := filepath.Join(t.TempDir(), "fishnet.shp")
	require.NoError(t, g.WriteGridShapefile(shp, grid))

	srid, err := g.GetSridOfVector(shp)
	require.NoError(t, err)
	assert.Equal(t, rst.BNG_SRID, srid)

	got, err := g.ReadFishnet(shp, "fid", 100)
	require.NoError(t, err)
	require.Equal(t, grid.Len(), got.Len())
	for i, c := range got.Cells {
		assert.Equal(t, grid.Cells[i].FID, c.FID)
		assert.Equal(t, grid.Cells[i].Bounds(), c.Bounds())
	}
}

func TestReadFishnetMissingUID(t *testing.T) {
	g := NewGdalToolbox(t.TempDir())
	shp := filepath.Join(t.TempDir(), "fishnet.shp")
	require.NoError(t, g.WriteGridShapefile(shp, classifiedGrid(t)))
	_, err := g.ReadFishnet(shp, "cell_id", 100)
	require.ErrorIs(t, err, rst.ErrValidation)
}

func TestReadFeatures(t *testing.T) {
	g := NewGdalToolbox(t.TempDir())
	dir := t.TempDir()
	shp := filepath.Join(dir, "grid.shp")
	require.NoError(t, g.WriteGridShapefile(shp, classifiedGrid(t)))
	js := filepath.Join(dir, "grid.geojson")
	require.NoError(t, g.ShapefileToGeoJSON(shp, js))

	for _, path := range []string{shp, js} {
		features, err := g.ReadFeatures(path)
		require.NoError(t, err, path)
		require.Len(t, features, 4, path)
		assert.InDelta(t, 10000, math.Abs(features[0].Geom.Area()), 1e-6)
		assert.Contains(t, features[0].Properties, rst.SHP_FIELD_INCLUDE)
		// shapefile shells are clockwise on disk
		for _, f := range features {
			for _, poly := range f.Geom.Polygons() {
				assert.Greater(t, ringArea(poly[0]), 0.0, path)
			}
		}
	}

	_, err := g.ReadFeatures(filepath.Join(dir, "grid.kml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOverlay(t *testing.T) {
	g := NewGdalToolbox()
	grid, err := rst.BuildGrid(rst.BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	features := []rst.InputFeature{
		{Geom: square(0, 100, 100, 200)},
		{Geom: square(150, 0, 200, 50)},
	}
	frags, err := NewOverlay(g).Intersect(context.Background(), grid.Cells, features)
	require.NoError(t, err)
	assert.Equal(t, []rst.Fragment{{FID: 1, Area: 10000}, {FID: 4, Area: 2500}}, frags)

	native, err := (&rst.NativeOverlay{}).Intersect(context.Background(), grid.Cells, features)
	require.NoError(t, err)
	assert.Equal(t, native, frags)
}

func TestOverlayInvalidGeometry(t *testing.T) {
	grid, err := rst.BuildGrid(rst.BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	bowtie := geom.Polygon{{{X: 0, Y: 0}, {X: 100, Y: 100}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: 0, Y: 0}}}
	_, err = NewOverlay(NewGdalToolbox()).Intersect(context.Background(), grid.Cells, []rst.InputFeature{{Geom: bowtie}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	// both engines refuse the same input
	_, err = (&rst.NativeOverlay{}).Intersect(context.Background(), grid.Cells, []rst.InputFeature{{Geom: bowtie}})
	assert.ErrorIs(t, err, rst.ErrInvalidGeometry)
}

func TestRasterWriter(t *testing.T) {
	tmp := t.TempDir()
	w := NewRasterWriter(NewGdalToolbox(tmp))
	grid := classifiedGrid(t)
	spec, err := rst.NewRasterSpec(rst.BoundingBox{XMax: 200, YMax: 200}, 100, 1, rst.FormatGeoTIFF)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out", "raster.tif")
	data, err := w.Write(context.Background(), grid, spec, out)
	require.NoError(t, err)
	assert.Nil(t, data)

	ds, err := gdal.Open(out, gdal.ReadOnly)
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, 2, ds.RasterXSize())
	assert.Equal(t, 2, ds.RasterYSize())
	assert.Equal(t, spec.GeoTransform, ds.GeoTransform())
	px := make([]uint8, 4)
	require.NoError(t, ds.RasterBand(1).IO(gdal.Read, 0, 0, 2, 2, px, 2, 2, 0, 0))
	assert.Equal(t, rst.Burn(grid, spec), px)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary shapefile dir must be removed")
}

func TestRasterWriterASCII(t *testing.T) {
	w := NewRasterWriter(NewGdalToolbox(t.TempDir()))
	grid := classifiedGrid(t)
	spec, err := rst.NewRasterSpec(rst.BoundingBox{XMax: 200, YMax: 200}, 100, 1, rst.FormatASCII)
	require.NoError(t, err)
	data, err := w.Write(context.Background(), grid, spec, "")
	require.NoError(t, err)
	assert.Contains(t, string(data), "ncols")
	assert.Contains(t, string(data), "NODATA_value")
}

func TestReadRasterNativeOutput(t *testing.T) {
	g := NewGdalToolbox(t.TempDir())
	grid := classifiedGrid(t)
	for _, f := range []rst.OutputFormat{rst.FormatGeoTIFF, rst.FormatASCII} {
		spec, err := rst.NewRasterSpec(rst.BoundingBox{XMax: 200, YMax: 200}, 100, 1, f)
		require.NoError(t, err)
		out := filepath.Join(t.TempDir(), "native"+f.Ext())
		_, err = rst.NativeWriter{}.Write(context.Background(), grid, spec, out)
		require.NoError(t, err)

		info, err := g.ReadRaster(out)
		require.NoError(t, err, f)
		assert.Equal(t, 2, info.Width)
		assert.Equal(t, 2, info.Height)
		assert.Equal(t, spec.GeoTransform, info.GeoTransform)
		assert.True(t, info.HasNoData)
		assert.Equal(t, 1.0, info.NoData)
		assert.Equal(t, rst.Burn(grid, spec), info.Pixels)
		assert.Equal(t, map[byte]int{0: 1, 1: 3}, info.Counts)
	}

	_, err := g.ReadRaster(filepath.Join(t.TempDir(), "missing.tif"))
	assert.ErrorIs(t, err, ErrInvalidTif)
}
