package rasteriser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 从GeoJSON FeatureCollection解析输入要素（仅面/多面）
func ReadFeatureCollection(data []byte) ([]InputFeature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongGeoType, err)
	}
	ret := make([]InputFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		p, err := PolygonalFromOrb(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		ret = append(ret, InputFeature{Geom: p, Properties: f.Properties})
	}
	return ret, nil
}

// ReadFishnet decodes a fishnet FeatureCollection. uidField names the
// identifier attribute; a lowercase "fid" is accepted for "FID".
func ReadFishnet(data []byte, uidField string, resolution float64) (*Grid, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &ValidationError{Fields: []*FieldError{{Field: "fishnet", Msg: err.Error()}}}
	}
	var v violations
	cells := make([]Cell, 0, len(fc.Features))
	for i, f := range fc.Features {
		fid, ok := lookupFID(f.Properties, uidField)
		if !ok {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v (%s)", ErrMissingFID, uidField)
			continue
		}
		poly, err := cellPolygonFromOrb(f.Geometry)
		if err != nil {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v", err)
			continue
		}
		cells = append(cells, Cell{FID: fid, Geom: poly})
	}
	if err := v.result(); err != nil {
		return nil, err
	}
	return NewFishnet(cells, resolution)
}

func lookupFID(props geojson.Properties, uidField string) (fid int, ok bool) {
	if uidField == "" {
		uidField = SHP_FIELD_FID
	}
	raw, found := props[uidField]
	if !found {
		for k, val := range props {
			if strings.EqualFold(k, uidField) {
				raw, found = val, true
				break
			}
		}
	}
	if !found {
		return
	}
	return toFID(raw)
}

func toFID(raw interface{}) (fid int, ok bool) {
	var f float64
	switch t := raw.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(t), 64); err != nil {
			return
		}
	default:
		return
	}
	if f != math.Trunc(f) || f <= 0 {
		return
	}
	return int(f), true
}

func cellPolygonFromOrb(g orb.Geometry) (geom.Polygon, error) {
	switch t := g.(type) {
	case orb.Polygon:
		return polygonFromOrb(t), nil
	case orb.MultiPolygon:
		if len(t) == 1 {
			return polygonFromOrb(t[0]), nil
		}
	case orb.Bound:
		return polygonFromOrb(t.ToPolygon()), nil
	}
	return nil, ErrWrongGeoType
}

// PolygonalFromOrb converts polygon-like orb geometries. Shells come out
// counter-clockwise and holes clockwise whatever the source winding.
func PolygonalFromOrb(g orb.Geometry) (geom.Polygonal, error) {
	switch t := g.(type) {
	case orb.Polygon:
		return OrientPolygon(polygonFromOrb(t)), nil
	case orb.MultiPolygon:
		mp := make(geom.MultiPolygon, len(t))
		for i, p := range t {
			mp[i] = OrientPolygon(polygonFromOrb(p))
		}
		return mp, nil
	case orb.Bound:
		return OrientPolygon(polygonFromOrb(t.ToPolygon())), nil
	case orb.Collection:
		var mp geom.MultiPolygon
		for _, sub := range t {
			p, err := PolygonalFromOrb(sub)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p.Polygons()...)
		}
		return mp, nil
	case nil:
		return nil, ErrEmptyGeometry
	}
	return nil, fmt.Errorf("%w: %s", ErrWrongGeoType, g.GeoJSONType())
}

func polygonFromOrb(p orb.Polygon) geom.Polygon {
	poly := make(geom.Polygon, len(p))
	for i, ring := range p {
		path := make(geom.Path, len(ring))
		for j, pt := range ring {
			path[j] = geom.Point{X: pt[0], Y: pt[1]}
		}
		poly[i] = path
	}
	return poly
}

func polygonToOrb(p geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, len(p))
	for i, path := range p {
		ring := make(orb.Ring, len(path))
		for j, pt := range path {
			ring[j] = orb.Point{pt.X, pt.Y}
		}
		poly[i] = ring
	}
	return poly
}

// FeatureCollection exports the fishnet with FID, area and include_me
// attributes, tagged with the British National Grid CRS.
func (g *Grid) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range g.Cells {
		c := &g.Cells[i]
		f := geojson.NewFeature(polygonToOrb(c.Geom))
		f.Properties[SHP_FIELD_FID] = c.FID
		f.Properties[SHP_FIELD_AREA] = c.Area
		f.Properties[SHP_FIELD_INCLUDE] = c.Include
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]interface{}{
			"type":       "name",
			"properties": map[string]string{"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", BNG_SRID)},
		},
	}
	return fc
}

// GeoJSON marshals the fishnet.
func (g *Grid) GeoJSON() ([]byte, error) {
	return g.FeatureCollection().MarshalJSON()
}
