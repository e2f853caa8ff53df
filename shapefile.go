package rasteriser

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

const shpTag = "Shapefile:"

type shpRow struct {
	g      geom.Geom
	fields map[string]string
}

func decodeShapefile(path string, fields ...string) (rows []shpRow, err error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return
	}
	defer d.Close()
	for {
		g, f, more := d.DecodeRowFields(fields...)
		if !more {
			break
		}
		rows = append(rows, shpRow{g: g, fields: f})
	}
	err = d.Error()
	return
}

// ReadShapefileFeatures reads the polygons of a shapefile in British
// National Grid coordinates. Attributes are not loaded.
func ReadShapefileFeatures(path string) ([]InputFeature, error) {
	rows, err := decodeShapefile(path)
	if err != nil {
		return nil, err
	}
	ret := make([]InputFeature, 0, len(rows))
	for i, r := range rows {
		if r.g == nil {
			continue
		}
		p, ok := r.g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("%s row %d: %w: %T", path, i, ErrWrongGeoType, r.g)
		}
		ret = append(ret, InputFeature{Geom: p, Properties: map[string]interface{}{}})
	}
	log.Info(shpTag+"features loaded", zap.String("path", path), zap.Int("count", len(ret)))
	return ret, nil
}

// ReadShapefileFishnet reads a fishnet whose identifier lives in uidField,
// accepting either case of the field name.
func ReadShapefileFishnet(path, uidField string, resolution float64) (*Grid, error) {
	if uidField == "" {
		uidField = SHP_FIELD_FID
	}
	var (
		rows  []shpRow
		err   error
		field string
	)
	for _, field = range fieldCandidates(uidField) {
		if rows, err = decodeShapefile(path, field); err == nil {
			break
		}
		log.Debug(shpTag+"uid field not usable", zap.String("field", field), zap.Error(err))
	}
	if err != nil {
		return nil, &ValidationError{Fields: []*FieldError{{Field: "fishnet", Msg: fmt.Sprintf("%v (%s): %v", ErrMissingFID, uidField, err)}}}
	}
	var v violations
	cells := make([]Cell, 0, len(rows))
	for i, r := range rows {
		fid, ok := toFID(r.fields[field])
		if !ok {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v (%s=%q)", ErrMissingFID, field, r.fields[field])
			continue
		}
		poly, ok := cellPolygon(r.g)
		if !ok {
			v.add(fmt.Sprintf("fishnet[%d]", i), "%v: %T", ErrWrongGeoType, r.g)
			continue
		}
		cells = append(cells, Cell{FID: fid, Geom: poly})
	}
	if err = v.result(); err != nil {
		return nil, err
	}
	return NewFishnet(cells, resolution)
}

func fieldCandidates(name string) []string {
	ret := []string{name}
	for _, alt := range []string{strings.ToUpper(name), strings.ToLower(name)} {
		if alt != ret[len(ret)-1] && alt != name {
			ret = append(ret, alt)
		}
	}
	return ret
}

func cellPolygon(g geom.Geom) (geom.Polygon, bool) {
	switch t := g.(type) {
	case geom.Polygon:
		return t, true
	case geom.MultiPolygon:
		if len(t) == 1 {
			return t[0], true
		}
	}
	return nil, false
}
