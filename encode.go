package rasteriser

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// TIFF and GeoTIFF tags written by EncodeGeoTIFF.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	geoKeyModelType       = 1024
	geoKeyRasterType      = 1025
	geoKeyProjectedCSType = 3072
	geoKeyProjLinearUnits = 3076

	modelTypeProjected = 1
	rasterPixelIsArea  = 1
	linearMeter        = 9001
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // little-endian value bytes
}

func shortEntry(tag uint16, vs ...uint16) ifdEntry {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vs)), data: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: b}
}

func doubleEntry(tag uint16, vs ...float64) ifdEntry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: b}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

// EncodeGeoTIFF writes px (row-major, one byte per pixel) as an
// uncompressed single strip little-endian GeoTIFF.
func EncodeGeoTIFF(spec RasterSpec, px []byte) ([]byte, error) {
	w, h := spec.Width, spec.Height
	if len(px) != w*h {
		return nil, fmt.Errorf("pixel buffer has %d bytes, want %d", len(px), w*h)
	}
	if uint64(len(px)) > math.MaxUint32/2 {
		return nil, fmt.Errorf("raster too large for a classic TIFF: %dx%d", w, h)
	}
	gt := spec.GeoTransform
	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(w)),
		longEntry(tagImageLength, uint32(h)),
		shortEntry(tagBitsPerSample, 8),
		shortEntry(tagCompression, 1),
		shortEntry(tagPhotometric, 1),
		longEntry(tagStripOffsets, 0), // patched below
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagRowsPerStrip, uint32(h)),
		longEntry(tagStripByteCounts, uint32(len(px))),
		shortEntry(tagPlanarConfig, 1),
		doubleEntry(tagModelPixelScale, gt[1], -gt[5], 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
		shortEntry(tagGeoKeyDirectory,
			1, 1, 0, 4,
			geoKeyModelType, 0, 1, modelTypeProjected,
			geoKeyRasterType, 0, 1, rasterPixelIsArea,
			geoKeyProjectedCSType, 0, 1, uint16(spec.SRID),
			geoKeyProjLinearUnits, 0, 1, linearMeter,
		),
		asciiEntry(tagGDALNoData, strconv.Itoa(int(spec.NoData))),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	extra := headerSize + ifdSize
	for _, e := range entries {
		if len(e.data) > 4 {
			extra += len(e.data) + len(e.data)%2
		}
	}
	pixOffset := uint32(extra)
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			binary.LittleEndian.PutUint32(entries[i].data, pixOffset)
		}
	}

	var buf bytes.Buffer
	buf.Grow(extra + len(px))
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(headerSize))

	binary.Write(&buf, le, uint16(len(entries)))
	next := uint32(headerSize + ifdSize)
	var overflow bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, le, e.tag)
		binary.Write(&buf, le, e.typ)
		binary.Write(&buf, le, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			buf.Write(v)
			continue
		}
		binary.Write(&buf, le, next)
		overflow.Write(e.data)
		if len(e.data)%2 == 1 {
			overflow.WriteByte(0)
		}
		next += uint32(len(e.data) + len(e.data)%2)
	}
	binary.Write(&buf, le, uint32(0)) // no further IFD
	buf.Write(overflow.Bytes())
	buf.Write(px)
	return buf.Bytes(), nil
}

// EncodeASCIIGrid writes px as an Esri ASCII grid.
func EncodeASCIIGrid(spec RasterSpec, px []byte) ([]byte, error) {
	w, h := spec.Width, spec.Height
	if len(px) != w*h {
		return nil, fmt.Errorf("pixel buffer has %d bytes, want %d", len(px), w*h)
	}
	ext := spec.Extent()
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	fmt.Fprintf(bw, "ncols        %d\n", w)
	fmt.Fprintf(bw, "nrows        %d\n", h)
	fmt.Fprintf(bw, "xllcorner    %s\n", formatCoord(ext.XMin))
	fmt.Fprintf(bw, "yllcorner    %s\n", formatCoord(ext.YMin))
	fmt.Fprintf(bw, "cellsize     %s\n", formatCoord(spec.Resolution()))
	fmt.Fprintf(bw, "NODATA_value %d\n", spec.NoData)
	for j := 0; j < h; j++ {
		for i, v := range px[j*w : (j+1)*w] {
			if i > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(int(v)))
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
