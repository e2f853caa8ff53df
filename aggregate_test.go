package rasteriser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wgdzlh/rasteriser/log"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		area, threshold float64
		invert          bool
		want            uint8
	}{
		{60, 50, true, 0},
		{60, 50, false, 1},
		{50, 50, true, 1}, // equal is not exceeding
		{50, 50, false, 0},
		{0, 0, true, 1},
		{0.0001, 0, true, 0},
		{100, 100, false, 0},
		{40, 50, true, 1},
		{40, 50, false, 0},
	}
	for _, tt := range tests {
		got := Classify(tt.area, tt.threshold, tt.invert)
		assert.Equal(t, tt.want, got, "Classify(%g, %g, %v)", tt.area, tt.threshold, tt.invert)
		assert.Equal(t, got, Classify(tt.area, tt.threshold, tt.invert), "not idempotent")
	}
}

func TestAggregateLeftJoin(t *testing.T) {
	g, err := BuildGrid(BoundingBox{XMax: 300, YMax: 200}, 100)
	require.NoError(t, err)
	areas := Aggregate(g, []Fragment{
		{FID: 1, Area: 2500},
		{FID: 1, Area: 2500},
		{FID: 4, Area: 10000},
	})
	require.Len(t, areas, g.Len())
	assert.Equal(t, map[int]float64{1: 50, 2: 0, 3: 0, 4: 100, 5: 0, 6: 0}, areas)
}

func TestAggregateIgnoresUnknownCells(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log.Set(zap.New(core))
	defer log.Set(nil)

	g, err := BuildGrid(BoundingBox{XMax: 100, YMax: 100}, 100)
	require.NoError(t, err)
	areas := Aggregate(g, []Fragment{{FID: 1, Area: 100}, {FID: 9, Area: 100}, {FID: 10, Area: 1}})
	assert.Equal(t, map[int]float64{1: 1}, areas)
	entries := logs.FilterMessageSnippet("unknown cells").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["count"])
}

func TestClassifyGridAndSummary(t *testing.T) {
	g, err := BuildGrid(BoundingBox{XMax: 200, YMax: 200}, 100)
	require.NoError(t, err)
	ClassifyGrid(g, Aggregate(g, []Fragment{{FID: 1, Area: 10000}, {FID: 3, Area: 5000}}), 50, true)

	var inc []uint8
	for _, c := range g.Cells {
		inc = append(inc, c.Include)
	}
	assert.Equal(t, []uint8{0, 1, 1, 1}, inc)
	assert.Equal(t, 100.0, g.Cells[0].Area)
	assert.Equal(t, 50.0, g.Cells[2].Area)

	s := Summarize(g)
	assert.Equal(t, Summary{Cells: 4, Intersected: 2, Flagged: 3, TotalArea: 150, MeanArea: 37.5, MaxArea: 100}, s)
	assert.Equal(t, Summary{}, Summarize(&Grid{}))
}
