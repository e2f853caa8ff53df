package rasteriser

const (
	// 英国国家格网坐标系，全流程固定，不做投影转换
	BNG_SRID = 27700

	COORD_MIN      = -100000.0
	COORD_MAX      = 1250000.0
	RESOLUTION_MIN = 10.0
	RESOLUTION_MAX = 10000.0
	THRESHOLD_MIN  = 0.0
	THRESHOLD_MAX  = 100.0

	DefaultResolution    = 100.0
	DefaultAreaThreshold = 50.0
	DefaultNoData        = 1

	// 边界服务的参考年份
	BoundaryYear = 2016

	// AreaNormalizationDivisor scales summed intersection area (m²) before
	// threshold comparison. Only at 100 m resolution does the result read as
	// a percentage of the cell (10000 m² / 100).
	AreaNormalizationDivisor = 100.0

	SHP_FIELD_FID     = "FID"
	SHP_FIELD_AREA    = "area"
	SHP_FIELD_INCLUDE = "include_me"

	SHP_DRIVER_NAME     = "ESRI Shapefile"
	GEOJSON_DRIVER_NAME = "GeoJSON"

	FILE_EXT_SHP     = ".shp"
	FILE_EXT_GEOJSON = ".geojson"
	FILE_EXT_JSON    = ".json"
)
