// Package gdaltool implements the GDAL/OGR backed collaborators of the
// rasteriser: geometry overlay, shapefile IO and gdal_rasterize.
package gdaltool

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/lukeroth/gdal"
	rst "github.com/wgdzlh/rasteriser"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

type GdalToolbox struct {
	refMap map[int]gdal.SpatialReference
	rLock  sync.Mutex
	tmpDir string
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

func destroyAll(gc []destroyable) {
	for _, v := range gc {
		v.Destroy()
	}
}

// 初始化GDAL工具箱，tmpDir为可选的临时目录路径（未提供的话为系统临时目录）
func NewGdalToolbox(tmpDir ...string) *GdalToolbox {
	g := &GdalToolbox{
		refMap: map[int]gdal.SpatialReference{},
		logTag: "GdalToolbox:",
	}
	if len(tmpDir) > 0 && tmpDir[0] != "" {
		g.tmpDir = tmpDir[0]
	}
	return g
}

// 获取srid对应的坐标系（可复用，故无需回收）
func (g *GdalToolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil { // 设定坐标系ID
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// 固定为(东向,北向)次序，避免按CRS定义的轴序倒置坐标
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[srid] = ref
	return
}

func (g *GdalToolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	wkt, _ := sp.ToWKT()
	log.Debug(g.logTag+"spatial ref attrs", zap.String("attr", wkt))
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		if strings.Contains(wkt, "British_National_Grid") || strings.Contains(wkt, "OSGB") {
			rawId = strconv.Itoa(rst.BNG_SRID)
		} else {
			err = ErrVoidSrid
			return
		}
	}
	srid, err = strconv.Atoi(rawId)
	return
}

// checkLayerSrid rejects layers in a known CRS other than EPSG:27700. Layers
// without a usable CRS are assumed to be in British National Grid.
func (g *GdalToolbox) checkLayerSrid(layer gdal.Layer, src string) error {
	srid, err := g.getSrid(layer.SpatialReference())
	if err != nil {
		log.Warn(g.logTag+"layer srid unknown, assuming BNG", zap.String("src", src))
		return nil
	}
	if srid != rst.BNG_SRID {
		log.Error(g.logTag+"layer srid mismatch", zap.String("src", src), zap.Int("srid", srid))
		return ErrWrongSrid
	}
	return nil
}

// 获取矢量文件的srid
func (g *GdalToolbox) GetSridOfVector(path string) (srid int, err error) {
	ds, err := openVector(path, false)
	if err != nil {
		return
	}
	defer ds.Destroy()
	if ds.LayerCount() == 0 {
		err = ErrGdalLayerMissing
		return
	}
	return g.getSrid(ds.LayerByIndex(0).SpatialReference())
}

func vectorDriverName(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case rst.FILE_EXT_SHP:
		return rst.SHP_DRIVER_NAME, nil
	case rst.FILE_EXT_GEOJSON, rst.FILE_EXT_JSON:
		return rst.GEOJSON_DRIVER_NAME, nil
	}
	return "", ErrUnsupportedFormat
}

func openVector(path string, update bool) (ds gdal.DataSource, err error) {
	name, err := vectorDriverName(path)
	if err != nil {
		return
	}
	mode := 0
	if update {
		mode = 1
	}
	ds, ok := gdal.OGRDriverByName(name).Open(path, mode)
	if !ok {
		err = ErrGdalDriverOpen
	}
	return
}

// 由多边形构造OGR几何，调用方负责回收
func (g *GdalToolbox) toGdal(p geom.Polygonal) (ret gdal.Geometry, err error) {
	polys := p.Polygons()
	if len(polys) == 0 {
		err = ErrInvalidGeometry
		return
	}
	if len(polys) == 1 {
		ret = polygonToGdal(polys[0])
		return
	}
	ret = gdal.Create(gdal.GT_MultiPolygon)
	for _, poly := range polys {
		if err = ret.AddGeometryDirectly(polygonToGdal(poly)); err != nil {
			log.Error(g.logTag+"add polygon failed", zap.Error(err))
			ret.Destroy()
			return
		}
	}
	return
}

func polygonToGdal(p geom.Polygon) gdal.Geometry {
	poly := gdal.Create(gdal.GT_Polygon)
	for _, path := range p {
		if len(path) == 0 {
			continue
		}
		ring := gdal.Create(gdal.GT_LinearRing)
		for _, pt := range path {
			ring.AddPoint2D(pt.X, pt.Y)
		}
		if path[0] != path[len(path)-1] {
			ring.AddPoint2D(path[0].X, path[0].Y) // 闭合
		}
		poly.AddGeometryDirectly(ring)
	}
	return poly
}

// 将OGR面/多面转为geom多边形
func fromGdal(geo gdal.Geometry) (ret geom.Polygonal, err error) {
	switch geo.Type() {
	case gdal.GT_Polygon, gdal.GT_Polygon25D:
		ret = polygonFromGdal(geo)
	case gdal.GT_MultiPolygon, gdal.GT_MultiPolygon25D, gdal.GT_GeometryCollection, gdal.GT_GeometryCollection25D:
		var mp geom.MultiPolygon
		for i, n := 0, geo.GeometryCount(); i < n; i++ {
			sub, e := fromGdal(geo.Geometry(i))
			if e != nil {
				return nil, e
			}
			mp = append(mp, sub.Polygons()...)
		}
		ret = mp
	default:
		err = ErrGdalWrongGeoType
	}
	return
}

func polygonFromGdal(geo gdal.Geometry) geom.Polygon {
	n := geo.GeometryCount()
	poly := make(geom.Polygon, 0, n)
	for i := 0; i < n; i++ {
		ring := geo.Geometry(i)
		pc := ring.PointCount()
		path := make(geom.Path, pc)
		for j := 0; j < pc; j++ {
			x, y, _ := ring.Point(j)
			path[j] = geom.Point{X: x, Y: y}
		}
		poly = append(poly, path)
	}
	return poly
}

func envelopeBounds(geo gdal.Geometry) *geom.Bounds {
	env := geo.Envelope()
	return &geom.Bounds{
		Min: geom.Point{X: env.MinX(), Y: env.MinY()},
		Max: geom.Point{X: env.MaxX(), Y: env.MaxY()},
	}
}
