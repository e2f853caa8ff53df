package rasteriser

import (
	"fmt"
	"math"

	"github.com/wgdzlh/rasteriser/utils"
)

type ExtentKind int

const (
	ExtentBoundingBox ExtentKind = iota + 1
	ExtentAreaCodes
	ExtentFishnet
)

func (k ExtentKind) String() string {
	switch k {
	case ExtentBoundingBox:
		return "bounding_box"
	case ExtentAreaCodes:
		return "area_codes"
	case ExtentFishnet:
		return "fishnet"
	}
	return "none"
}

// ExtentSource selects exactly one way of obtaining the fishnet.
type ExtentSource struct {
	kind    ExtentKind
	bbox    BoundingBox
	codes   []string
	fishnet *Grid
}

func FromBoundingBox(b BoundingBox) ExtentSource {
	return ExtentSource{kind: ExtentBoundingBox, bbox: b}
}

// FromAreaCodes resolves the extent from area codes; pass "all" alone for
// every area.
func FromAreaCodes(codes ...string) ExtentSource {
	return ExtentSource{kind: ExtentAreaCodes, codes: utils.NormalizeCodes(codes)}
}

// FromFishnet uses g verbatim instead of generating a fishnet.
func FromFishnet(g *Grid) ExtentSource {
	return ExtentSource{kind: ExtentFishnet, fishnet: g}
}

func (e ExtentSource) Kind() ExtentKind          { return e.kind }
func (e ExtentSource) BoundingBox() BoundingBox { return e.bbox }
func (e ExtentSource) Fishnet() *Grid            { return e.fishnet }

func (e ExtentSource) Codes() []string {
	return append([]string(nil), e.codes...)
}

func (e ExtentSource) check(v *violations) {
	switch e.kind {
	case ExtentBoundingBox:
		e.bbox.check(v, "bounding_box")
	case ExtentAreaCodes:
		if len(e.codes) == 0 {
			v.add("area_codes", "at least one area code required")
		}
		if utils.IsAllCodes(e.codes) {
			return
		}
		for i, c := range e.codes {
			if !utils.IsAreaCode(c) {
				v.add(fmt.Sprintf("area_codes[%d]", i), "%q does not match ^[A-Z][0-9]{8}$", c)
			}
		}
	case ExtentFishnet:
		if e.fishnet == nil || len(e.fishnet.Cells) == 0 {
			v.add("fishnet", "%v", ErrNoFeatures)
			return
		}
		seen := make(map[int]struct{}, len(e.fishnet.Cells))
		for i, c := range e.fishnet.Cells {
			if c.FID <= 0 {
				v.add(fmt.Sprintf("fishnet[%d]", i), "%v", ErrMissingFID)
				continue
			}
			if _, ok := seen[c.FID]; ok {
				v.add(fmt.Sprintf("fishnet[%d]", i), "%v: %d", ErrDuplicateFID, c.FID)
			}
			seen[c.FID] = struct{}{}
			if c.Bounds() == nil {
				v.add(fmt.Sprintf("fishnet[%d]", i), "%v", ErrEmptyGeometry)
			}
		}
	default:
		v.add("extent", "one of area_codes, bounding_box or fishnet is required")
	}
}

// Params are the raw pipeline arguments. They only take effect through
// NewOptions.
type Params struct {
	Extent        ExtentSource
	Scale         Scale
	Output        string // file name or path; empty returns the raster in memory
	Format        OutputFormat
	Resolution    float64 // cell edge, metres
	AreaThreshold float64
	Invert        bool // flag 0 for cells over the threshold
	NoData        int
	// CoverGrid sizes the raster from the fishnet bounds instead of the
	// requested extent, so width and height equal cols and rows.
	CoverGrid    bool
	BoundaryYear int
}

func DefaultParams() Params {
	return Params{
		Scale:         ScaleLAD,
		Format:        FormatGeoTIFF,
		Resolution:    DefaultResolution,
		AreaThreshold: DefaultAreaThreshold,
		Invert:        true,
		NoData:        DefaultNoData,
		BoundaryYear:  BoundaryYear,
	}
}

// Options are validated pipeline arguments.
type Options struct {
	p      Params
	output string
	valid  bool
}

// NewOptions validates p, reporting every violated constraint. dataDir is
// the base for a relative Output.
func NewOptions(p Params, dataDir string) (Options, error) {
	var v violations
	p.Extent.check(&v)
	if !p.Scale.Valid() {
		v.add("scale", "%q not in [oa lad gor]", p.Scale)
	}
	if !p.Format.Valid() {
		v.add("output_format", "%q not in [%s %s]", p.Format, FormatGeoTIFF, FormatASCII)
	}
	checkResolution(&v, p.Resolution)
	if math.IsNaN(p.AreaThreshold) || p.AreaThreshold < THRESHOLD_MIN || p.AreaThreshold > THRESHOLD_MAX {
		v.add("area_threshold", "%g outside [%g, %g]", p.AreaThreshold, THRESHOLD_MIN, THRESHOLD_MAX)
	}
	if p.NoData != 0 && p.NoData != 1 {
		v.add("nodata", "%d not in [0 1]", p.NoData)
	}
	if p.BoundaryYear == 0 {
		p.BoundaryYear = BoundaryYear
	}
	o := Options{p: p}
	if p.Output != "" {
		out, err := utils.ResolveOutputPath(dataDir, p.Output, p.Format.Ext())
		if err != nil {
			v.add("output_filename", "%v", err)
		}
		o.output = out
	}
	if err := v.result(); err != nil {
		return Options{}, err
	}
	o.p.Extent.codes = p.Extent.Codes()
	o.valid = true
	return o, nil
}

func (o Options) Extent() ExtentSource   { return o.p.Extent }
func (o Options) Scale() Scale           { return o.p.Scale }
func (o Options) Format() OutputFormat   { return o.p.Format }
func (o Options) Resolution() float64    { return o.p.Resolution }
func (o Options) AreaThreshold() float64 { return o.p.AreaThreshold }
func (o Options) Invert() bool           { return o.p.Invert }
func (o Options) NoData() uint8          { return uint8(o.p.NoData) }
func (o Options) CoverGrid() bool        { return o.p.CoverGrid }
func (o Options) BoundaryYear() int      { return o.p.BoundaryYear }

// Output is the resolved output path, empty for in-memory output.
func (o Options) Output() string { return o.output }

func (o Options) Valid() bool { return o.valid }
