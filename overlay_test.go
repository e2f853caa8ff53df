package rasteriser

import (
	"context"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func overlayGrid(t *testing.T) *Grid {
	g, err := BuildGrid(BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	return g
}

func TestNativeOverlayExactCell(t *testing.T) {
	g := overlayGrid(t)
	// covers FID 1 exactly and only touches its neighbours
	frags, err := (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: square(0, 100, 100, 200)}})
	require.NoError(t, err)
	assert.Equal(t, []Fragment{{FID: 1, Area: 10000}}, frags)
}

func TestNativeOverlaySpanningFeature(t *testing.T) {
	g := overlayGrid(t)
	features := []InputFeature{
		{Geom: square(50, 50, 150, 150)},
		{Geom: geom.MultiPolygon{square(0, 0, 10, 10), square(190, 190, 200, 200)}},
	}
	frags, err := (&NativeOverlay{Workers: 2}).Intersect(context.Background(), g.Cells, features)
	require.NoError(t, err)
	assert.Equal(t, []Fragment{
		{FID: 1, Area: 2500},
		{FID: 2, Area: 2500},
		{FID: 2, Area: 100},
		{FID: 3, Area: 2500},
		{FID: 3, Area: 100},
		{FID: 4, Area: 2500},
	}, frags)
}

func TestNativeOverlayHole(t *testing.T) {
	g := overlayGrid(t)
	// outer ring counter-clockwise, hole clockwise
	donut := geom.Polygon{
		{{X: 0, Y: 100}, {X: 100, Y: 100}, {X: 100, Y: 200}, {X: 0, Y: 200}, {X: 0, Y: 100}},
		{{X: 25, Y: 125}, {X: 25, Y: 175}, {X: 75, Y: 175}, {X: 75, Y: 125}, {X: 25, Y: 125}},
	}
	frags, err := (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: donut}})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, 1, frags[0].FID)
	assert.InDelta(t, 10000-2500, frags[0].Area, 1e-9)
}

func TestNativeOverlayNoIntersection(t *testing.T) {
	g := overlayGrid(t)
	frags, err := (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: square(500, 500, 600, 600)}})
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestNativeOverlayTriangleCell(t *testing.T) {
	cells := []Cell{{FID: 1, Geom: geom.Polygon{{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: 0, Y: 0}}}}}
	frags, err := (&NativeOverlay{}).Intersect(context.Background(), cells, []InputFeature{{Geom: square(-10, -10, 110, 110)}})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.InDelta(t, 5000, frags[0].Area, 1e-6)
}

func TestNativeOverlayRejectsBadInput(t *testing.T) {
	g := overlayGrid(t)
	bad := []geom.Polygonal{
		nil,
		geom.Polygon{},
		geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}}},
		geom.Polygon{{{X: 0, Y: 0}, {X: math.NaN(), Y: 1}, {X: 1, Y: 0}}},
	}
	for i, p := range bad {
		_, err := (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: p}})
		assert.Error(t, err, "case %d", i)
	}
}

func TestNativeOverlayRejectsSelfIntersection(t *testing.T) {
	g, err := BuildGrid(BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	bowtie := geom.Polygon{{{X: 0, Y: 100}, {X: 100, Y: 200}, {X: 100, Y: 100}, {X: 0, Y: 200}, {X: 0, Y: 100}}}
	_, err = (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: bowtie}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	// a bad hole fails the whole feature
	donut := geom.Polygon{square(0, 100, 100, 200)[0], bowtie[0]}
	_, err = (&NativeOverlay{}).Intersect(context.Background(), g.Cells, []InputFeature{{Geom: donut}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestRingSelfIntersects(t *testing.T) {
	tests := []struct {
		name string
		ring geom.Path
		want bool
	}{
		{"square", square(0, 0, 10, 10)[0], false},
		{"open square", square(0, 0, 10, 10)[0][:4], false},
		{"repeated vertex", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}, false},
		{"triangle", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 0}}, false},
		{"concave", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}, false},
		{"bowtie", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 0}}, true},
		{"touching vertex", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 5, Y: 5}, {X: 0, Y: 0}}, true},
		{"collinear overlap", geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 5, Y: 0}, {X: 5, Y: -5}, {X: 0, Y: 0}}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ringSelfIntersects(tt.ring), tt.name)
	}
}

func TestOrientPolygon(t *testing.T) {
	// hole wound the same way as its shell
	donut := geom.Polygon{square(0, 100, 100, 200)[0], square(25, 125, 75, 175)[0]}
	b := &geom.Bounds{Max: geom.Point{X: 200, Y: 200}}
	assert.InDelta(t, 12500, clippedArea(donut, b), 1e-9)

	OrientPolygon(donut)
	assert.Greater(t, signedArea(donut[0]), 0.0)
	assert.Less(t, signedArea(donut[1]), 0.0)
	assert.InDelta(t, 7500, clippedArea(donut, b), 1e-9)

	// clockwise shell with clockwise hole
	cw := geom.Polygon{square(0, 100, 100, 200)[0], square(25, 125, 75, 175)[0]}
	for _, ring := range cw {
		for l, r := 0, len(ring)-1; l < r; l, r = l+1, r-1 {
			ring[l], ring[r] = ring[r], ring[l]
		}
	}
	OrientPolygon(cw)
	assert.Greater(t, signedArea(cw[0]), 0.0)
	assert.Less(t, signedArea(cw[1]), 0.0)
	assert.InDelta(t, 7500, clippedArea(cw, b), 1e-9)
}

func TestNativeOverlayCancelled(t *testing.T) {
	g := overlayGrid(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&NativeOverlay{}).Intersect(ctx, g.Cells, []InputFeature{{Geom: square(0, 0, 10, 10)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClippedArea(t *testing.T) {
	b := &geom.Bounds{Max: geom.Point{X: 10, Y: 10}}
	// clockwise square half outside the rectangle
	cw := geom.Polygon{{{X: 5, Y: 0}, {X: 5, Y: 10}, {X: 15, Y: 10}, {X: 15, Y: 0}, {X: 5, Y: 0}}}
	assert.InDelta(t, 50, clippedArea(cw, b), 1e-12)
	tri := geom.Polygon{{{X: 0, Y: 0}, {X: 15, Y: 0}, {X: 0, Y: 15}, {X: 0, Y: 0}}}
	assert.InDelta(t, 100-12.5, clippedArea(tri, b), 1e-9)
}
