package rasteriser

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
)

// BoundingBox is an extent in British National Grid metres.
type BoundingBox struct {
	XMin float64 `json:"xmin" yaml:"xmin"`
	YMin float64 `json:"ymin" yaml:"ymin"`
	XMax float64 `json:"xmax" yaml:"xmax"`
	YMax float64 `json:"ymax" yaml:"ymax"`
}

// BoundingBoxFromSlice reads [xmin, ymin, xmax, ymax].
func BoundingBoxFromSlice(v []float64) (b BoundingBox, err error) {
	if len(v) != 4 {
		err = &ValidationError{Fields: []*FieldError{{Field: "bounding_box", Msg: fmt.Sprintf("want 4 values, got %d", len(v))}}}
		return
	}
	b = BoundingBox{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}
	return
}

func BoundingBoxFromBounds(b *geom.Bounds) BoundingBox {
	return BoundingBox{XMin: b.Min.X, YMin: b.Min.Y, XMax: b.Max.X, YMax: b.Max.Y}
}

func (b BoundingBox) Width() float64  { return b.XMax - b.XMin }
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }

func (b BoundingBox) Slice() []float64 {
	return []float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

func (b BoundingBox) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.XMin, Y: b.YMin},
		Max: geom.Point{X: b.XMax, Y: b.YMax},
	}
}

func (b BoundingBox) WKT() string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", b.XMin, b.XMax, b.YMin, b.YMax)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g]", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Validate checks ordering and the legal working range, reporting every
// violation.
func (b BoundingBox) Validate() error {
	var v violations
	b.check(&v, "bounding_box")
	return v.result()
}

func (b BoundingBox) check(v *violations, field string) {
	for i, c := range b.Slice() {
		if math.IsNaN(c) || c < COORD_MIN || c > COORD_MAX {
			v.add(fmt.Sprintf("%s[%d]", field, i), "%g outside [%g, %g]", c, COORD_MIN, COORD_MAX)
		}
	}
	if !(b.XMin < b.XMax) {
		v.add(field, "xmin %g must be less than xmax %g", b.XMin, b.XMax)
	}
	if !(b.YMin < b.YMax) {
		v.add(field, "ymin %g must be less than ymax %g", b.YMin, b.YMax)
	}
}

// Cell is one fishnet square. Area and Include are set by classification.
type Cell struct {
	FID     int
	Geom    geom.Polygon
	Area    float64
	Include uint8
}

// Bounds is nil for a cell without points.
func (c *Cell) Bounds() *geom.Bounds {
	return polygonalBounds(c.Geom)
}

// Grid is a fishnet. Rows and Cols are zero for fishnets supplied
// verbatim whose layout is unknown.
type Grid struct {
	Resolution float64
	Rows       int
	Cols       int
	Origin     geom.Point // (xmin, ymax)
	Cells      []Cell
}

func (g *Grid) Len() int { return len(g.Cells) }

// Cell returns the cell with the given FID, nil when absent.
func (g *Grid) Cell(fid int) *Cell {
	if g.Rows > 0 && g.Cols > 0 && fid >= 1 && fid <= len(g.Cells) && g.Cells[fid-1].FID == fid {
		return &g.Cells[fid-1]
	}
	for i := range g.Cells {
		if g.Cells[i].FID == fid {
			return &g.Cells[i]
		}
	}
	return nil
}

// Bounds is the total extent of all cells.
func (g *Grid) Bounds() *geom.Bounds {
	var b *geom.Bounds
	for i := range g.Cells {
		b = extendBounds(b, g.Cells[i].Bounds())
	}
	return b
}

// Fragment is the piece of one input feature falling inside one cell.
type Fragment struct {
	FID  int
	Area float64
}

// InputFeature is a polygonal feature with attributes the pipeline carries
// but never reads.
type InputFeature struct {
	Geom       geom.Polygonal
	Properties map[string]interface{}
}

type Scale string

const (
	ScaleOA  Scale = "oa"
	ScaleLAD Scale = "lad"
	ScaleGOR Scale = "gor"
)

func (s Scale) Valid() bool {
	switch s {
	case ScaleOA, ScaleLAD, ScaleGOR:
		return true
	}
	return false
}

type OutputFormat string

const (
	FormatGeoTIFF OutputFormat = "GeoTIFF"
	FormatASCII   OutputFormat = "ASCII"
)

func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch strings.ToLower(s) {
	case "geotiff", "gtiff", "tif", "tiff":
		return FormatGeoTIFF, true
	case "ascii", "aaigrid", "asc":
		return FormatASCII, true
	}
	return OutputFormat(s), false
}

func (f OutputFormat) Valid() bool {
	return f == FormatGeoTIFF || f == FormatASCII
}

// 默认扩展名
func (f OutputFormat) Ext() string {
	if f == FormatASCII {
		return ".asc"
	}
	return ".tif"
}

// GDAL驱动名
func (f OutputFormat) Driver() string {
	if f == FormatASCII {
		return "AAIGrid"
	}
	return "GTiff"
}

func extendBounds(b, o *geom.Bounds) *geom.Bounds {
	if o == nil {
		return b
	}
	if b == nil {
		return &geom.Bounds{Min: o.Min, Max: o.Max}
	}
	b.Min.X = math.Min(b.Min.X, o.Min.X)
	b.Min.Y = math.Min(b.Min.Y, o.Min.Y)
	b.Max.X = math.Max(b.Max.X, o.Max.X)
	b.Max.Y = math.Max(b.Max.Y, o.Max.Y)
	return b
}

// polygonalBounds is the total extent of a possibly nil geometry.
func polygonalBounds(p geom.Polygonal) *geom.Bounds {
	var b *geom.Bounds
	if p == nil {
		return nil
	}
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			for _, pt := range ring {
				b = extendBounds(b, &geom.Bounds{Min: pt, Max: pt})
			}
		}
	}
	return b
}
