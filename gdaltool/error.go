package gdaltool

import "errors"

var (
	ErrGdalDriverCreate  = errors.New("gdal driver create err")
	ErrGdalDriverOpen    = errors.New("gdal driver open err")
	ErrGdalLayerMissing  = errors.New("gdal datasource has no layer")
	ErrVoidSrid          = errors.New("gdal layer with void srid")
	ErrWrongSrid         = errors.New("gdal layer not in British National Grid")
	ErrGdalWrongGeoType  = errors.New("gdal wrong geo type")
	ErrInvalidGeometry   = errors.New("gdal invalid geometry")
	ErrUnsupportedFormat = errors.New("unsupported vector format")
	ErrEmptyTif          = errors.New("empty tif")
	ErrInvalidTif        = errors.New("invalid tif")
	ErrWrongTif          = errors.New("raster is not single band")
	ErrTifReadFailed     = errors.New("tif read failed")
)
