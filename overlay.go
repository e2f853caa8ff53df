package rasteriser

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OverlayEngine intersects fishnet cells with input features. Each returned
// fragment carries the owning cell FID and the area of the piece in square
// metres.
type OverlayEngine interface {
	Intersect(ctx context.Context, cells []Cell, features []InputFeature) ([]Fragment, error)
}

const (
	overlayTag = "Overlay:"

	rtreeMinChildren = 25
	rtreeMaxChildren = 50

	// pieces smaller than this (m²) are edge contacts, not overlaps
	minFragmentArea = 1e-9
)

// NativeOverlay is a pure Go OverlayEngine. Features are indexed in an
// R-tree; rectangular cells are clipped exactly, other cells fall back to
// polygon intersection.
type NativeOverlay struct {
	// Workers bounds the goroutines used for cells; <= 0 means GOMAXPROCS.
	Workers int
}

type indexedFeature struct {
	geom.Polygonal
	idx int
}

func (o *NativeOverlay) Intersect(ctx context.Context, cells []Cell, features []InputFeature) ([]Fragment, error) {
	tree := rtree.NewTree(rtreeMinChildren, rtreeMaxChildren)
	for i, f := range features {
		if err := checkFeature(f.Geom); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		tree.Insert(&indexedFeature{Polygonal: f.Geom, idx: i})
	}
	log.Info(overlayTag+"start intersection", zap.Int("cells", len(cells)), zap.Int("features", len(features)))

	workers := o.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	const chunk = 256
	pieces := make([][]Fragment, len(cells))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for start := 0; start < len(cells); start += chunk {
		start, end := start, start+chunk
		if end > len(cells) {
			end = len(cells)
		}
		eg.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				pieces[i] = intersectCell(tree, &cells[i])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, p := range pieces {
		n += len(p)
	}
	out := make([]Fragment, 0, n)
	for _, p := range pieces {
		out = append(out, p...)
	}
	log.Info(overlayTag+"intersection done", zap.Int("fragments", len(out)))
	return out, nil
}

func intersectCell(tree *rtree.Rtree, c *Cell) (out []Fragment) {
	cb := c.Bounds()
	if cb == nil {
		return
	}
	hits := tree.SearchIntersect(cb)
	if len(hits) == 0 {
		return
	}
	found := make([]*indexedFeature, 0, len(hits))
	for _, h := range hits {
		found = append(found, h.(*indexedFeature))
	}
	sort.Slice(found, func(i, j int) bool { return found[i].idx < found[j].idx })

	rect, isRectCell := isRect(c.Geom)
	for _, f := range found {
		var area float64
		if isRectCell {
			area = clippedArea(f.Polygonal, rect)
		} else if inter := c.Geom.Intersection(f.Polygonal); inter != nil {
			area = math.Abs(inter.Area())
		}
		if area > minFragmentArea {
			out = append(out, Fragment{FID: c.FID, Area: area})
		}
	}
	return
}

func checkFeature(p geom.Polygonal) error {
	if polygonalBounds(p) == nil {
		return ErrEmptyGeometry
	}
	polys := p.Polygons()
	if len(polys) == 0 {
		return ErrEmptyGeometry
	}
	for _, poly := range polys {
		for _, ring := range poly {
			if len(ring) < 3 {
				return fmt.Errorf("%w: ring with %d points", ErrWrongGeoType, len(ring))
			}
			for _, pt := range ring {
				if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
					return fmt.Errorf("%w: non-finite coordinate", ErrWrongGeoType)
				}
			}
			if ringSelfIntersects(ring) {
				return fmt.Errorf("%w: self-intersecting ring", ErrInvalidGeometry)
			}
		}
	}
	return nil
}

// ringSelfIntersects reports whether two non-adjacent edges of ring meet.
// Repeated vertices and the closing point are ignored.
func ringSelfIntersects(ring geom.Path) bool {
	pts := make(geom.Path, 0, len(ring))
	for _, pt := range ring {
		if len(pts) == 0 || pts[len(pts)-1] != pt {
			pts = append(pts, pt)
		}
	}
	for len(pts) > 1 && pts[len(pts)-1] == pts[0] {
		pts = pts[:len(pts)-1]
	}
	n := len(pts)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // 首尾相邻
			}
			if segmentsMeet(a, b, pts[j], pts[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

func segmentsMeet(a, b, c, d geom.Point) bool {
	o1, o2 := orient(a, b, c), orient(a, b, d)
	o3, o4 := orient(c, d, a), orient(c, d, b)
	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}
	return o1 == 0 && onSegment(a, b, c) ||
		o2 == 0 && onSegment(a, b, d) ||
		o3 == 0 && onSegment(c, d, a) ||
		o4 == 0 && onSegment(c, d, b)
}

func orient(a, b, c geom.Point) float64 {
	v := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether p, collinear with a and b, lies between them.
func onSegment(a, b, p geom.Point) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}

// OrientPolygon winds the shell of p counter-clockwise and its holes
// clockwise, reversing rings in place. Ring 0 is taken as the shell.
func OrientPolygon(p geom.Polygon) geom.Polygon {
	for i, ring := range p {
		a := signedArea(ring)
		if (i == 0 && a < 0) || (i > 0 && a > 0) {
			for l, r := 0, len(ring)-1; l < r; l, r = l+1, r-1 {
				ring[l], ring[r] = ring[r], ring[l]
			}
		}
	}
	return p
}

// clippedArea is the area of p inside the rectangle b. Rings wound like
// the first ring of their polygon add area, rings wound the other way are
// holes and subtract it.
func clippedArea(p geom.Polygonal, b *geom.Bounds) (area float64) {
	for _, poly := range p.Polygons() {
		if len(poly) == 0 {
			continue
		}
		outer := signedArea(poly[0])
		var a float64
		for _, ring := range poly {
			clipped := math.Abs(signedArea(clipRing(ring, b)))
			if (signedArea(ring) >= 0) == (outer >= 0) {
				a += clipped
			} else {
				a -= clipped
			}
		}
		if a > 0 {
			area += a
		}
	}
	return
}

func signedArea(ring geom.Path) (a float64) {
	n := len(ring)
	if n < 3 {
		return
	}
	for i := 0; i < n; i++ {
		p, q := ring[i], ring[(i+1)%n]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// clipRing clips a ring against b (Sutherland-Hodgman). Vertex order is
// kept, so the sign of the area is preserved.
func clipRing(ring geom.Path, b *geom.Bounds) geom.Path {
	out := ring
	edges := []struct {
		inside func(geom.Point) bool
		cross  func(p, q geom.Point) geom.Point
	}{
		{func(p geom.Point) bool { return p.X >= b.Min.X }, func(p, q geom.Point) geom.Point { return atX(p, q, b.Min.X) }},
		{func(p geom.Point) bool { return p.X <= b.Max.X }, func(p, q geom.Point) geom.Point { return atX(p, q, b.Max.X) }},
		{func(p geom.Point) bool { return p.Y >= b.Min.Y }, func(p, q geom.Point) geom.Point { return atY(p, q, b.Min.Y) }},
		{func(p geom.Point) bool { return p.Y <= b.Max.Y }, func(p, q geom.Point) geom.Point { return atY(p, q, b.Max.Y) }},
	}
	for _, e := range edges {
		if len(out) == 0 {
			break
		}
		in := out
		out = make(geom.Path, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			curIn, prevIn := e.inside(cur), e.inside(prev)
			switch {
			case curIn && !prevIn:
				out = append(out, e.cross(prev, cur), cur)
			case curIn:
				out = append(out, cur)
			case prevIn:
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func atX(p, q geom.Point, x float64) geom.Point {
	t := (x - p.X) / (q.X - p.X)
	return geom.Point{X: x, Y: p.Y + t*(q.Y-p.Y)}
}

func atY(p, q geom.Point, y float64) geom.Point {
	t := (y - p.Y) / (q.Y - p.Y)
	return geom.Point{X: p.X + t*(q.X-p.X), Y: y}
}
