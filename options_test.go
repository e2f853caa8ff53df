package rasteriser

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bboxParams() Params {
	p := DefaultParams()
	p.Extent = FromBoundingBox(BoundingBox{XMax: 200, YMax: 200})
	return p
}

func TestDefaultParams(t *testing.T) {
	o, err := NewOptions(bboxParams(), "")
	require.NoError(t, err)
	assert.True(t, o.Valid())
	assert.Equal(t, ScaleLAD, o.Scale())
	assert.Equal(t, FormatGeoTIFF, o.Format())
	assert.Equal(t, 100.0, o.Resolution())
	assert.Equal(t, 50.0, o.AreaThreshold())
	assert.True(t, o.Invert())
	assert.EqualValues(t, 1, o.NoData())
	assert.Equal(t, 2016, o.BoundaryYear())
	assert.Empty(t, o.Output())
	assert.False(t, Options{}.Valid())
}

func TestNewOptionsEnumeratesViolations(t *testing.T) {
	p := Params{
		Extent:        FromAreaCodes("E07000004", "bogus", "e07000005"),
		Scale:         "county",
		Format:        "PNG",
		Resolution:    5,
		AreaThreshold: math.NaN(),
		NoData:        255,
	}
	_, err := NewOptions(p, "")
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	want := []string{"area_codes[1]", "area_codes[2]", "scale", "output_format", "resolution", "area_threshold", "nodata"}
	for _, f := range want {
		assert.True(t, ve.Has(f), "missing violation %s in %v", f, err)
	}
	assert.False(t, ve.Has("area_codes[0]"))
	assert.Len(t, ve.Fields, len(want))
}

func TestNewOptionsExtent(t *testing.T) {
	var ve *ValidationError

	_, err := NewOptions(Params{Scale: ScaleOA, Format: FormatASCII, Resolution: 100}, "")
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("extent"))

	p := bboxParams()
	p.Extent = FromBoundingBox(BoundingBox{XMin: 300, XMax: 200, YMax: 2e6})
	_, err = NewOptions(p, "")
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("bounding_box"))
	assert.True(t, ve.Has("bounding_box[3]"))

	p.Extent = FromAreaCodes()
	_, err = NewOptions(p, "")
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("area_codes"))

	p.Extent = FromAreaCodes("all")
	o, err := NewOptions(p, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, o.Extent().Codes())

	p.Extent = FromAreaCodes(" E07000004", "E07000004 ", "E07000005")
	o, err = NewOptions(p, "")
	require.NoError(t, err)
	assert.Equal(t, ExtentAreaCodes, o.Extent().Kind())
	codes := o.Extent().Codes()
	assert.Equal(t, []string{"E07000004", "E07000005"}, codes)
	codes[0] = "changed"
	assert.Equal(t, "E07000004", o.Extent().Codes()[0], "codes are copied")
}

func TestNewOptionsFishnet(t *testing.T) {
	p := bboxParams()
	p.Extent = FromFishnet(&Grid{Cells: []Cell{
		{FID: 1, Geom: square(0, 0, 100, 100)},
		{FID: 1, Geom: square(100, 0, 200, 100)},
		{FID: -3, Geom: square(200, 0, 300, 100)},
		{FID: 4},
	}})
	_, err := NewOptions(p, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 3)
	for _, f := range []string{"fishnet[1]", "fishnet[2]", "fishnet[3]"} {
		assert.True(t, ve.Has(f), "missing %s in %v", f, err)
	}

	p.Extent = FromFishnet(nil)
	_, err = NewOptions(p, "")
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("fishnet"))
}

func TestNewOptionsOutputPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		out    string
		format OutputFormat
		want   string
	}{
		{"occupancy", FormatGeoTIFF, filepath.Join(dir, "occupancy.tif")},
		{"occupancy", FormatASCII, filepath.Join(dir, "occupancy.asc")},
		{"sub/grid.tiff", FormatGeoTIFF, filepath.Join(dir, "sub", "grid.tiff")},
		{"/abs/out.asc", FormatASCII, "/abs/out.asc"},
	}
	for _, tt := range tests {
		p := bboxParams()
		p.Output, p.Format = tt.out, tt.format
		o, err := NewOptions(p, dir)
		require.NoError(t, err)
		assert.Equal(t, tt.want, o.Output(), tt.out)
	}
}

func TestExtentKindString(t *testing.T) {
	assert.Equal(t, "bounding_box", ExtentBoundingBox.String())
	assert.Equal(t, "area_codes", ExtentAreaCodes.String())
	assert.Equal(t, "fishnet", ExtentFishnet.String())
	assert.Equal(t, "none", ExtentKind(0).String())
}
