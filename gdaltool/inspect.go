package gdaltool

import (
	"sync"

	gd "github.com/airbusgeo/godal"
	"github.com/wgdzlh/rasteriser/log"
	"go.uber.org/zap"
)

var registerOnce sync.Once

// RasterInfo is the content of a single band occupancy raster.
type RasterInfo struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	NoData       float64
	HasNoData    bool
	Pixels       []byte // 行优先，自左上角开始
	Counts       map[byte]int
}

// 读取单波段占用栅格（GeoTIFF或ASCII Grid），像元值按Byte读出
func (g *GdalToolbox) ReadRaster(path string) (info *RasterInfo, err error) {
	registerOnce.Do(gd.RegisterAll)
	sds, err := gd.Open(path, gd.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open raster failed", zap.String("path", path), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer sds.Close()
	bands := sds.Bands()
	if len(bands) != 1 {
		log.Error(g.logTag+"unexpected band count", zap.Int("bands", len(bands)))
		err = ErrWrongTif
		return
	}
	band := bands[0]
	st := band.Structure()
	// AAIGrid读出为Int32，统一转换为Byte读取
	log.Debug(g.logTag+"raster band", zap.Int("dt", int(st.DataType)), zap.Int("width", st.SizeX), zap.Int("height", st.SizeY))
	info = &RasterInfo{
		Width:  st.SizeX,
		Height: st.SizeY,
		Pixels: make([]byte, st.SizeX*st.SizeY),
		Counts: map[byte]int{},
	}
	if info.GeoTransform, err = sds.GeoTransform(); err != nil {
		log.Error(g.logTag+"raster without geotransform", zap.Error(err))
		return nil, err
	}
	info.NoData, info.HasNoData = band.NoData()
	if err = band.IO(gd.IORead, 0, 0, info.Pixels, st.SizeX, st.SizeY); err != nil {
		log.Error(g.logTag+"read raster band failed", zap.Error(err))
		return nil, ErrTifReadFailed
	}
	for _, v := range info.Pixels {
		info.Counts[v]++
	}
	log.Info(g.logTag+"raster read", zap.String("path", path), zap.Int("width", info.Width), zap.Int("height", info.Height))
	return
}
