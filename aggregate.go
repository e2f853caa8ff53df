package rasteriser

import (
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const aggregateTag = "Aggregate:"

// Aggregate sums fragment areas per cell and divides each sum by
// AreaNormalizationDivisor. Every cell of grid appears exactly once in the
// result; cells without fragments get 0.
func Aggregate(grid *Grid, fragments []Fragment) map[int]float64 {
	areas := make(map[int]float64, len(grid.Cells))
	for i := range grid.Cells {
		areas[grid.Cells[i].FID] = 0
	}
	var orphans int
	for _, f := range fragments {
		if _, ok := areas[f.FID]; !ok {
			orphans++
			continue
		}
		areas[f.FID] += f.Area
	}
	for fid, a := range areas {
		areas[fid] = a / AreaNormalizationDivisor
	}
	if orphans > 0 {
		log.Warn(aggregateTag+"fragments of unknown cells ignored", zap.Int("count", orphans))
	}
	return areas
}

// Classify returns the inclusion bit for one cell. Only a covered area
// strictly greater than threshold counts as exceeding it.
func Classify(coveredArea, threshold float64, invert bool) uint8 {
	if coveredArea > threshold {
		if invert {
			return 0
		}
		return 1
	}
	if invert {
		return 1
	}
	return 0
}

// ClassifyGrid stores each cell's aggregated area and inclusion bit.
func ClassifyGrid(grid *Grid, areas map[int]float64, threshold float64, invert bool) {
	for i := range grid.Cells {
		c := &grid.Cells[i]
		c.Area = areas[c.FID]
		c.Include = Classify(c.Area, threshold, invert)
	}
}

// Summary describes a classified grid.
type Summary struct {
	Cells       int     `json:"cells"`
	Intersected int     `json:"intersected"`
	Flagged     int     `json:"flagged"` // cells with Include == 1
	TotalArea   float64 `json:"total_area"`
	MeanArea    float64 `json:"mean_area"`
	MaxArea     float64 `json:"max_area"`
}

func Summarize(grid *Grid) (s Summary) {
	s.Cells = len(grid.Cells)
	if s.Cells == 0 {
		return
	}
	areas := make([]float64, s.Cells)
	for i, c := range grid.Cells {
		areas[i] = c.Area
		if c.Area > 0 {
			s.Intersected++
		}
		if c.Include == 1 {
			s.Flagged++
		}
	}
	s.TotalArea = floats.Sum(areas)
	s.MeanArea = s.TotalArea / float64(s.Cells)
	s.MaxArea = floats.Max(areas)
	return
}

func (s Summary) fields() []zap.Field {
	return []zap.Field{
		zap.Int("cells", s.Cells),
		zap.Int("intersected", s.Intersected),
		zap.Int("flagged", s.Flagged),
		zap.Float64("totalArea", s.TotalArea),
		zap.Float64("meanArea", s.MeanArea),
		zap.Float64("maxArea", s.MaxArea),
	}
}
