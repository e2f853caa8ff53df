package gdaltool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/lukeroth/gdal"
	rst "github.com/wgdzlh/rasteriser"
	"github.com/wgdzlh/rasteriser/log"
	"github.com/wgdzlh/rasteriser/utils"
	"go.uber.org/zap"
)

// RasterWriter burns a classified grid with gdal_rasterize. The grid goes
// through a temporary shapefile in a private directory that is removed
// when Write returns.
type RasterWriter struct {
	tb *GdalToolbox
}

func NewRasterWriter(tb *GdalToolbox) *RasterWriter {
	return &RasterWriter{tb: tb}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// rasterizeOptions fixes size, extent and CRS from spec so the result
// matches the pure Go writer pixel for pixel.
func rasterizeOptions(spec rst.RasterSpec) []string {
	ext := spec.Extent()
	nodata := strconv.Itoa(int(spec.NoData))
	return []string{
		"-of", GTIFF_DRIVER_NAME,
		"-a", rst.SHP_FIELD_INCLUDE,
		"-ot", "Byte",
		"-a_srs", fmt.Sprintf("EPSG:%d", spec.SRID),
		"-init", nodata,
		"-a_nodata", nodata,
		"-te", ftoa(ext.XMin), ftoa(ext.YMin), ftoa(ext.XMax), ftoa(ext.YMax),
		"-ts", strconv.Itoa(spec.Width), strconv.Itoa(spec.Height),
	}
}

func (w *RasterWriter) Write(ctx context.Context, grid *rst.Grid, spec rst.RasterSpec, out string) (data []byte, err error) {
	g := w.tb
	if spec.Width <= 0 || spec.Height <= 0 {
		err = rst.ErrEmptyRaster
		return
	}
	dir, err := utils.GetUniqSubDir(g.tmpDir)
	if err != nil {
		log.Error(g.logTag+"create tmp dir failed", zap.Error(err))
		return
	}
	defer os.RemoveAll(dir) // 中间文件随本次调用释放
	id := uuid.NewString()
	shp := filepath.Join(dir, fmt.Sprintf(TMP_GRID_SHP, id))
	if err = g.WriteGridShapefile(shp, grid); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	sds, err := gdal.OpenEx(shp, gdal.OFVector, nil, nil, nil)
	if err != nil {
		log.Error(g.logTag+"open grid shp failed", zap.Error(err))
		return
	}
	defer sds.Close()

	tif := filepath.Join(dir, fmt.Sprintf(TMP_RASTER, id))
	opts := rasterizeOptions(spec)
	log.Info(g.logTag+"start rasterize", zap.Strings("opts", opts))
	rds, err := gdal.Rasterize(tif, sds, opts)
	if err != nil {
		log.Error(g.logTag+"rasterize failed", zap.Error(err))
		return
	}
	rds.Close() // 写出tif
	result := tif
	if spec.Format == rst.FormatASCII {
		if result, err = g.translate(tif, filepath.Join(dir, fmt.Sprintf(TMP_ASCII, id)), AAIGRID_DRIVER_NAME); err != nil {
			return
		}
	}
	if data, err = os.ReadFile(result); err != nil {
		return
	}
	if len(data) == 0 {
		err = ErrEmptyTif
		return
	}
	if out == "" {
		return
	}
	if err = rst.WriteOutput(out, data); err != nil {
		return nil, err
	}
	log.Info(g.logTag+"raster written", zap.String("out", out), zap.Int("bytes", len(data)))
	return nil, nil
}

func (g *GdalToolbox) translate(src, dst, driver string) (out string, err error) {
	sds, err := gdal.Open(src, gdal.ReadOnly)
	if err != nil {
		log.Error(g.logTag+"open raster failed", zap.String("src", src), zap.Error(err))
		return
	}
	defer sds.Close()
	dds, err := gdal.Translate(dst, sds, []string{"-of", driver})
	if err != nil {
		log.Error(g.logTag+"translate failed", zap.String("driver", driver), zap.Error(err))
		return
	}
	dds.Close()
	out = dst
	return
}
