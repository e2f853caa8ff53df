package gdaltool

const (
	ENCODING_OPTION = "ENCODING=UTF-8"

	AAIGRID_DRIVER_NAME = "AAIGrid"
	GTIFF_DRIVER_NAME   = "GTiff"

	// 临时文件名模板
	TMP_GRID_SHP = "grid_%s.shp"
	TMP_RASTER   = "raster_%s.tif"
	TMP_ASCII    = "raster_%s.asc"

	// include_me字段宽度
	INCLUDE_FIELD_WIDTH = 1
)
