package gdaltool

import (
	"context"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/lukeroth/gdal"
	rst "github.com/wgdzlh/rasteriser"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

// Overlay is an OverlayEngine on OGR/GEOS geometry. Invalid input
// geometries fail the whole overlay.
type Overlay struct {
	tb *GdalToolbox
}

func NewOverlay(tb *GdalToolbox) *Overlay {
	return &Overlay{tb: tb}
}

type gdalFeature struct {
	geo gdal.Geometry
	box *geom.Bounds
}

func (o *Overlay) Intersect(ctx context.Context, cells []rst.Cell, features []rst.InputFeature) (ret []rst.Fragment, err error) {
	g := o.tb
	log.Info(g.logTag+"start overlay", zap.Int("cells", len(cells)), zap.Int("features", len(features)))
	var (
		geos = make([]gdalFeature, 0, len(features))
		gc   []destroyable
	)
	defer func() {
		destroyAll(gc)
	}()
	for i, f := range features {
		if f.Geom == nil {
			err = fmt.Errorf("feature %d: %w", i, rst.ErrEmptyGeometry)
			return
		}
		var geo gdal.Geometry
		if geo, err = g.toGdal(f.Geom); err != nil {
			err = fmt.Errorf("feature %d: %w", i, err)
			return
		}
		gc = append(gc, geo)
		if !geo.IsValid() {
			log.Error(g.logTag+"invalid feature geometry", zap.Int("feature", i))
			err = fmt.Errorf("feature %d: %w", i, ErrInvalidGeometry)
			return
		}
		geos = append(geos, gdalFeature{geo: geo, box: envelopeBounds(geo)})
	}

	for i := range cells {
		if err = ctx.Err(); err != nil {
			return
		}
		c := &cells[i]
		cb := c.Bounds()
		if cb == nil {
			continue
		}
		var cellGeo gdal.Geometry
		if cellGeo, err = g.toGdal(c.Geom); err != nil {
			err = fmt.Errorf("cell %d: %w", c.FID, err)
			return
		}
		for _, f := range geos {
			if !cb.Overlaps(f.box) {
				continue
			}
			inter := cellGeo.Intersection(f.geo)
			area := inter.Area()
			inter.Destroy()
			if area > 0 {
				ret = append(ret, rst.Fragment{FID: c.FID, Area: area})
			}
		}
		cellGeo.Destroy()
	}
	log.Info(g.logTag+"overlay done", zap.Int("fragments", len(ret)))
	return
}
