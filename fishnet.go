package rasteriser

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

const fishnetTag = "FishNet:"

func checkResolution(v *violations, res float64) {
	if math.IsNaN(res) || res < RESOLUTION_MIN || res > RESOLUTION_MAX {
		v.add("resolution", "%g outside [%g, %g]", res, RESOLUTION_MIN, RESOLUTION_MAX)
	}
}

// GridDims returns the fishnet row and column counts for extent, using
// ceiling division so the grid always covers the extent.
func GridDims(extent BoundingBox, resolution float64) (rows, cols int) {
	rows = int(math.Ceil(extent.Height() / resolution))
	cols = int(math.Ceil(extent.Width() / resolution))
	return
}

// BuildGrid generates the fishnet covering extent. Cells are created column
// by column from the left, top to bottom within a column, and numbered from
// 1 in that order.
func BuildGrid(extent BoundingBox, resolution float64) (*Grid, error) {
	var v violations
	checkResolution(&v, resolution)
	extent.check(&v, "bounding_box")
	if err := v.result(); err != nil {
		log.Warn(fishnetTag+"argument validation failed", zap.Error(err))
		return nil, err
	}
	rows, cols := GridDims(extent, resolution)
	log.Info(fishnetTag+"fishnet bounds", zap.Stringer("bbox", extent), zap.Float64("netsize", resolution),
		zap.Int("rows", rows), zap.Int("cols", cols))

	g := &Grid{
		Resolution: resolution,
		Rows:       rows,
		Cols:       cols,
		Origin:     geom.Point{X: extent.XMin, Y: extent.YMax},
		Cells:      make([]Cell, 0, rows*cols),
	}
	for c := 0; c < cols; c++ {
		left := extent.XMin + float64(c)*resolution
		right := left + resolution
		for r := 0; r < rows; r++ {
			top := extent.YMax - float64(r)*resolution
			bottom := top - resolution
			g.Cells = append(g.Cells, Cell{
				FID:  c*rows + r + 1,
				Geom: rectPolygon(left, bottom, right, top),
			})
		}
	}
	return g, nil
}

// rectPolygon builds the closed ring top-left, top-right, bottom-right,
// bottom-left, top-left.
func rectPolygon(left, bottom, right, top float64) geom.Polygon {
	return geom.Polygon{{
		{X: left, Y: top},
		{X: right, Y: top},
		{X: right, Y: bottom},
		{X: left, Y: bottom},
		{X: left, Y: top},
	}}
}

// NewFishnet wraps cells supplied by a caller. Every cell must carry a
// positive, unique FID; cells are reordered by FID.
func NewFishnet(cells []Cell, resolution float64) (*Grid, error) {
	var v violations
	if len(cells) == 0 {
		v.add("fishnet", "%v", ErrNoFeatures)
	}
	seen := make(map[int]struct{}, len(cells))
	for i, c := range cells {
		if c.FID <= 0 {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v", ErrMissingFID)
			continue
		}
		if _, ok := seen[c.FID]; ok {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v: %d", ErrDuplicateFID, c.FID)
			continue
		}
		seen[c.FID] = struct{}{}
		if len(c.Geom) == 0 || len(c.Geom[0]) < 4 {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v", ErrEmptyGeometry)
		}
	}
	if err := v.result(); err != nil {
		return nil, err
	}
	sorted := make([]Cell, len(cells))
	copy(sorted, cells)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FID < sorted[j].FID })

	g := &Grid{Resolution: resolution, Cells: sorted}
	if b := g.Bounds(); b != nil {
		g.Origin = geom.Point{X: b.Min.X, Y: b.Max.Y}
	}
	log.Info(fishnetTag+"using supplied fishnet", zap.Int("cells", len(sorted)))
	return g, nil
}

// isRect reports whether p is a single axis-aligned rectangular ring and
// returns its bounds.
func isRect(p geom.Polygon) (b *geom.Bounds, ok bool) {
	if len(p) != 1 {
		return
	}
	ring := p[0]
	n := len(ring)
	if n == 5 && ring[0] == ring[4] {
		n = 4
	}
	if n != 4 {
		return
	}
	b = p.Bounds()
	for _, pt := range ring[:n] {
		if (pt.X != b.Min.X && pt.X != b.Max.X) || (pt.Y != b.Min.Y && pt.Y != b.Max.Y) {
			return nil, false
		}
	}
	for i := 0; i < n; i++ {
		a, c := ring[i], ring[(i+1)%n]
		if a.X != c.X && a.Y != c.Y {
			return nil, false
		}
	}
	ok = b.Max.X > b.Min.X && b.Max.Y > b.Min.Y
	return
}
