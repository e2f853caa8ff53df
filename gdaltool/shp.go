package gdaltool

import (
	"fmt"
	"strings"

	"github.com/lukeroth/gdal"
	rst "github.com/wgdzlh/rasteriser"
	"github.com/wgdzlh/rasteriser/log"
	"github.com/wgdzlh/rasteriser/utils"
	"go.uber.org/zap"
)

func (g *GdalToolbox) getShpDriver(shp string) (ds gdal.DataSource, layer gdal.Layer, err error) {
	log.Info(g.logTag+"output shp files", zap.String("shp", shp))
	driver := gdal.OGRDriverByName(rst.SHP_DRIVER_NAME)
	ds, ok := driver.Create(shp, nil)
	if !ok {
		err = ErrGdalDriverCreate
		return
	}
	ref, err := g.getSridRef(rst.BNG_SRID)
	if err != nil {
		ds.Destroy()
		return
	}
	layer = ds.CreateLayer(utils.GetFilenameWithoutExt(shp), ref, gdal.GT_Polygon, []string{ENCODING_OPTION})
	return
}

// 建立FID、area、include_me三个属性字段
func (g *GdalToolbox) initGridLayer(layer gdal.Layer) (err error) {
	fields := []gdal.FieldDefinition{
		gdal.CreateFieldDefinition(rst.SHP_FIELD_FID, gdal.FT_Integer),
		gdal.CreateFieldDefinition(rst.SHP_FIELD_AREA, gdal.FT_Real),
		gdal.CreateFieldDefinition(rst.SHP_FIELD_INCLUDE, gdal.FT_Integer),
	}
	fields[2].SetWidth(INCLUDE_FIELD_WIDTH)
	defer func() {
		for _, fd := range fields {
			fd.Destroy()
		}
	}()
	for _, fd := range fields {
		if err = layer.CreateField(fd, false); err != nil {
			log.Error(g.logTag+"create shp field failed", zap.String("field", fd.Name()), zap.Error(err))
			return
		}
	}
	return
}

// 将格网写入shp，要素按格网单元次序写出
func (g *GdalToolbox) WriteGridShapefile(shp string, grid *rst.Grid) (err error) {
	ds, layer, err := g.getShpDriver(shp)
	if err != nil {
		return
	}
	defer ds.Destroy() // 生成shp文件 + 释放资源
	if err = g.initGridLayer(layer); err != nil {
		return
	}
	var (
		def        = layer.Definition()
		fidIdx     = def.FieldIndex(rst.SHP_FIELD_FID)
		areaIdx    = def.FieldIndex(rst.SHP_FIELD_AREA)
		includeIdx = def.FieldIndex(rst.SHP_FIELD_INCLUDE)
		feature    gdal.Feature
		geo        gdal.Geometry
		gc         = make([]destroyable, 0, len(grid.Cells))
	)
	defer func() {
		destroyAll(gc)
	}()
	for i := range grid.Cells {
		c := &grid.Cells[i]
		feature = def.Create()
		gc = append(gc, feature)
		feature.SetFieldInteger(fidIdx, c.FID)
		feature.SetFieldFloat64(areaIdx, c.Area)
		feature.SetFieldInteger(includeIdx, int(c.Include))
		if geo, err = g.toGdal(c.Geom); err != nil {
			err = fmt.Errorf("cell %d: %w", c.FID, err)
			return
		}
		if err = feature.SetGeometryDirectly(geo); err != nil {
			log.Error(g.logTag+"err in set geom of feature", zap.Int("fid", c.FID), zap.Error(err))
			return
		}
		if err = layer.Create(feature); err != nil {
			log.Error(g.logTag+"err in create feature of layer", zap.Int("fid", c.FID), zap.Error(err))
			return
		}
	}
	log.Info(g.logTag+"grid shp files created", zap.String("shp", shp), zap.Int("cells", len(grid.Cells)))
	return
}

// 从shp或GeoJSON文件中解析出输入面要素（坐标系须为EPSG:27700）
func (g *GdalToolbox) ReadFeatures(path string) (ret []rst.InputFeature, err error) {
	ds, err := openVector(path, false)
	if err != nil {
		return
	}
	defer ds.Destroy()
	if ds.LayerCount() == 0 {
		err = ErrGdalLayerMissing
		return
	}
	layer := ds.LayerByIndex(0)
	if err = g.checkLayerSrid(layer, path); err != nil {
		return
	}
	def := layer.Definition()
	names := make([]string, def.FieldCount())
	for i := range names {
		names[i] = def.FieldDefinition(i).Name()
	}
	ret = make([]rst.InputFeature, 0, 128)
	var gc []destroyable
	defer func() {
		destroyAll(gc)
	}()
	for n := 0; ; n++ {
		feature := layer.NextFeature()
		if feature == nil {
			break
		}
		gc = append(gc, *feature)
		geo := feature.Geometry()
		if geo.IsEmpty() {
			continue
		}
		p, e := fromGdal(geo)
		if e != nil {
			err = fmt.Errorf("%s feature %d: %w", path, n, e)
			return
		}
		// 外环逆时针、内环顺时针
		for _, poly := range p.Polygons() {
			rst.OrientPolygon(poly)
		}
		props := make(map[string]interface{}, len(names))
		for i, name := range names {
			props[name] = feature.FieldAsString(i)
		}
		ret = append(ret, rst.InputFeature{Geom: p, Properties: props})
	}
	log.Info(g.logTag+"features loaded", zap.String("path", path), zap.Int("count", len(ret)))
	return
}

// 按名称查找字段，大小写不敏感
func fieldIndexFold(def gdal.FeatureDefinition, name string) int {
	if idx := def.FieldIndex(name); idx >= 0 {
		return idx
	}
	for i, n := 0, def.FieldCount(); i < n; i++ {
		if strings.EqualFold(def.FieldDefinition(i).Name(), name) {
			return i
		}
	}
	return -1
}

// 读取预制格网，uidField为格网编号字段（FID/fid均可）
func (g *GdalToolbox) ReadFishnet(path, uidField string, resolution float64) (grid *rst.Grid, err error) {
	if uidField == "" {
		uidField = rst.SHP_FIELD_FID
	}
	ds, err := openVector(path, false)
	if err != nil {
		return
	}
	defer ds.Destroy()
	if ds.LayerCount() == 0 {
		err = ErrGdalLayerMissing
		return
	}
	layer := ds.LayerByIndex(0)
	if err = g.checkLayerSrid(layer, path); err != nil {
		return
	}
	uidIdx := fieldIndexFold(layer.Definition(), uidField)
	if uidIdx < 0 {
		err = &rst.ValidationError{Fields: []*rst.FieldError{{Field: "fishnet", Msg: fmt.Sprintf("%v (%s)", rst.ErrMissingFID, uidField)}}}
		return
	}
	var (
		cells []rst.Cell
		gc    []destroyable
	)
	defer func() {
		destroyAll(gc)
	}()
	for {
		feature := layer.NextFeature()
		if feature == nil {
			break
		}
		gc = append(gc, *feature)
		p, e := fromGdal(feature.Geometry())
		if e != nil {
			err = fmt.Errorf("%s cell %d: %w", path, len(cells), e)
			return
		}
		polys := p.Polygons()
		if len(polys) != 1 {
			err = fmt.Errorf("%s cell %d: %w", path, len(cells), ErrGdalWrongGeoType)
			return
		}
		cells = append(cells, rst.Cell{FID: feature.FieldAsInteger(uidIdx), Geom: polys[0]})
	}
	return rst.NewFishnet(cells, resolution)
}

// 从shp文件转化生成GeoJSON文件
func (g *GdalToolbox) ShapefileToGeoJSON(shp, out string) (err error) {
	log.Info(g.logTag+"start geojson shp", zap.String("shp", shp))
	sds, err := gdal.OpenEx(shp, gdal.OFVector, nil, nil, nil)
	if err != nil {
		log.Error(g.logTag+"open shp error", zap.Error(err))
		return
	}
	defer sds.Close()
	dds, err := gdal.VectorTranslate(out, []gdal.Dataset{sds}, []string{"-f", rst.GEOJSON_DRIVER_NAME})
	if err != nil {
		log.Error(g.logTag+"VectorTranslate failed", zap.Error(err))
		return
	}
	dds.Close() // 生成转换后的json文件
	log.Info(g.logTag+"end geojson shp", zap.String("shp", shp), zap.String("out", out))
	return
}
