// Command rasteriser builds fishnets and rasterises polygon features over
// them in British National Grid coordinates.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	rst "github.com/wgdzlh/rasteriser"
	"github.com/wgdzlh/rasteriser/gdaltool"
	"github.com/wgdzlh/rasteriser/log"
	"github.com/wgdzlh/rasteriser/utils"
	"go.uber.org/zap"
)

const (
	engineNative = "native"
	engineGDAL   = "gdal"

	mainTag = "Main:"
)

var (
	configPath string
	engine     string
	settings   *rst.Settings

	bbox       string
	codes      []string
	fishnet    string
	uidField   string
	resolution float64
	threshold  float64
	invert     bool
	nodata     int
	format     string
	scale      string
	output     string
	coverGrid  bool
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch rst.KindOf(err) {
	case rst.KindValidation:
		return 2
	case rst.KindBoundaryResolution:
		return 3
	case rst.KindOverlay:
		return 4
	case rst.KindIO:
		return 5
	case rst.KindRasterization:
		return 6
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rasteriser",
		Short:         "Rasterise polygon features over a British National Grid fishnet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if settings, err = rst.LoadSettings(configPath); err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			return log.Init(settings.Log)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML settings file")
	root.PersistentFlags().StringVar(&engine, "engine", engineNative, "geometry engine: native or gdal")

	fishnetCmd := &cobra.Command{
		Use:   "fishnet",
		Short: "Generate a fishnet and write it as GeoJSON or ESRI Shapefile",
		Args:  cobra.NoArgs,
		RunE:  runFishnet,
	}
	runCmd := &cobra.Command{
		Use:   "run [features]",
		Short: "Rasterise the polygons of a GeoJSON or shapefile",
		Args:  cobra.ExactArgs(1),
		RunE:  runPipeline,
	}
	for _, c := range []*cobra.Command{fishnetCmd, runCmd} {
		f := c.Flags()
		f.StringVar(&bbox, "bbox", "", "bounding box xmin,ymin,xmax,ymax")
		f.StringSliceVar(&codes, "codes", nil, `area codes, or "all"`)
		f.Float64VarP(&resolution, "resolution", "r", rst.DefaultResolution, "cell size in metres")
		f.StringVarP(&output, "output", "o", "", "output file")
	}
	f := runCmd.Flags()
	f.StringVar(&fishnet, "fishnet", "", "pre-built fishnet (GeoJSON or shapefile)")
	f.StringVar(&uidField, "uid", rst.SHP_FIELD_FID, "fishnet identifier attribute")
	f.Float64VarP(&threshold, "threshold", "t", rst.DefaultAreaThreshold, "area threshold")
	f.BoolVar(&invert, "invert", true, "flag cells over the threshold with 0")
	f.IntVar(&nodata, "nodata", rst.DefaultNoData, "nodata value, 0 or 1")
	f.StringVarP(&format, "format", "f", string(rst.FormatGeoTIFF), "output format: GeoTIFF or ASCII")
	f.StringVar(&scale, "scale", string(rst.ScaleLAD), "scale tag: oa, lad or gor")
	f.BoolVar(&coverGrid, "cover-grid", false, "size the raster from the fishnet instead of the extent")

	inspectCmd := &cobra.Command{
		Use:   "inspect [raster]",
		Short: "Report size, georeferencing and pixel counts of a written raster",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	root.AddCommand(fishnetCmd, runCmd, inspectCmd)
	return root
}

func newToolbox() *gdaltool.GdalToolbox {
	return gdaltool.NewGdalToolbox(settings.TmpDir)
}

func newPipeline() (*rst.Pipeline, error) {
	p := rst.NewPipeline(settings)
	switch engine {
	case engineNative:
	case engineGDAL:
		tb := newToolbox()
		p.Overlay = gdaltool.NewOverlay(tb)
		p.Writer = gdaltool.NewRasterWriter(tb)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
	return p, nil
}

// extentFromFlags picks the single extent source given on the command line.
// Every bad extent flag is reported; only a non-validation failure reading
// --fishnet stops early.
func extentFromFlags() (src rst.ExtentSource, err error) {
	var (
		n      int
		fields []*rst.FieldError
	)
	if bbox != "" {
		n++
		vs, e := utils.StrToFloats(bbox, ",")
		if e != nil {
			fields = append(fields, &rst.FieldError{Field: "bounding_box", Msg: e.Error()})
		} else if b, e := rst.BoundingBoxFromSlice(vs); e != nil {
			fields = appendFields(fields, "bounding_box", e)
		} else {
			src = rst.FromBoundingBox(b)
		}
	}
	if len(codes) > 0 {
		n++
		src = rst.FromAreaCodes(codes...)
	}
	if fishnet != "" {
		n++
		g, e := readFishnet(fishnet)
		switch {
		case e == nil:
			src = rst.FromFishnet(g)
		case rst.KindOf(e) == rst.KindValidation:
			fields = appendFields(fields, "fishnet", e)
		default:
			return rst.ExtentSource{}, e
		}
	}
	if n > 1 {
		fields = append(fields, &rst.FieldError{Field: "extent", Msg: "--bbox, --codes and --fishnet are mutually exclusive"})
	}
	if len(fields) > 0 {
		return rst.ExtentSource{}, &rst.ValidationError{Fields: fields}
	}
	return
}

func appendFields(fields []*rst.FieldError, field string, err error) []*rst.FieldError {
	var ve *rst.ValidationError
	if errors.As(err, &ve) {
		return append(fields, ve.Fields...)
	}
	return append(fields, &rst.FieldError{Field: field, Msg: err.Error()})
}

// optionsFromFlags validates the extent flags, the output name and params
// together and reports all of their violations in one error.
func optionsFromFlags(params rst.Params) (opts rst.Options, err error) {
	var fields []*rst.FieldError
	src, err := extentFromFlags()
	extentFailed := err != nil
	if extentFailed {
		if rst.KindOf(err) != rst.KindValidation {
			return
		}
		fields = appendFields(fields, "extent", err)
	}
	if output == "" {
		fields = append(fields, &rst.FieldError{Field: "output_filename", Msg: "required"})
	}
	params.Extent = src
	if opts, err = rst.NewOptions(params, settings.DataDir); err != nil {
		var ve *rst.ValidationError
		if !errors.As(err, &ve) {
			return
		}
		for _, f := range ve.Fields {
			// 范围参数已报错，不再重复"extent"
			if extentFailed && f.Field == "extent" {
				continue
			}
			fields = append(fields, f)
		}
	}
	if len(fields) > 0 {
		return rst.Options{}, &rst.ValidationError{Fields: fields}
	}
	return opts, nil
}

func runFishnet(cmd *cobra.Command, args []string) error {
	params := rst.DefaultParams()
	params.Resolution = resolution
	opts, err := optionsFromFlags(params)
	if err != nil {
		return err
	}
	src := opts.Extent()
	extent := src.BoundingBox()
	if src.Kind() == rst.ExtentAreaCodes {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if extent, err = p.ResolveExtent(cmd.Context(), src.Codes(), settings.BoundaryYear); err != nil {
			return err
		}
	}
	grid, err := rst.BuildGrid(extent, resolution)
	if err != nil {
		return err
	}
	out, err := utils.ResolveOutputPath(settings.DataDir, output, rst.FILE_EXT_GEOJSON)
	if err != nil {
		return err
	}
	if err = utils.EnsureParentDir(out); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case rst.FILE_EXT_SHP:
		err = newToolbox().WriteGridShapefile(out, grid)
	case rst.FILE_EXT_GEOJSON, rst.FILE_EXT_JSON:
		var data []byte
		if data, err = grid.GeoJSON(); err == nil {
			err = rst.WriteOutput(out, data)
		}
	default:
		err = fmt.Errorf("unsupported fishnet format %q", filepath.Ext(out))
	}
	if err != nil {
		return err
	}
	log.Info(mainTag+"fishnet written", zap.String("out", out), zap.Int("cells", grid.Len()))
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	f, ok := rst.ParseOutputFormat(format)
	if !ok {
		log.Warn(mainTag+"unknown output format", zap.String("format", format))
	}
	params := rst.DefaultParams()
	params.Scale = rst.Scale(strings.ToLower(scale))
	params.Output = output
	params.Format = f
	params.Resolution = resolution
	params.AreaThreshold = threshold
	params.Invert = invert
	params.NoData = nodata
	params.CoverGrid = coverGrid
	params.BoundaryYear = settings.BoundaryYear
	opts, err := optionsFromFlags(params)
	if err != nil {
		return err
	}
	features, err := readFeatures(args[0])
	if err != nil {
		return err
	}
	p, err := newPipeline()
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context(), features, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d flagged=%d/%d\n", res.Path, res.Spec.Width, res.Spec.Height,
		res.Summary.Flagged, res.Summary.Cells)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	info, err := newToolbox().ReadRaster(args[0])
	if err != nil {
		return err
	}
	gt := info.GeoTransform
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%dx%d origin=(%g, %g) cell=%g\n", info.Width, info.Height, gt[0], gt[3], gt[1])
	if info.HasNoData {
		fmt.Fprintf(w, "nodata=%g\n", info.NoData)
	}
	vals := make([]int, 0, len(info.Counts))
	for v := range info.Counts {
		vals = append(vals, int(v))
	}
	sort.Ints(vals)
	for _, v := range vals {
		fmt.Fprintf(w, "%d: %d\n", v, info.Counts[byte(v)])
	}
	return nil
}

// inputError tags a read failure of an input file as an io error, unless it
// already carries a kind.
func inputError(err error) error {
	if err == nil || rst.KindOf(err) != 0 {
		return err
	}
	return &rst.Error{Kind: rst.KindIO, Stage: "read input", Err: err}
}

func readFeatures(path string) (features []rst.InputFeature, err error) {
	defer func() { err = inputError(err) }()
	if engine == engineGDAL {
		return newToolbox().ReadFeatures(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case rst.FILE_EXT_SHP:
		return rst.ReadShapefileFeatures(path)
	case rst.FILE_EXT_GEOJSON, rst.FILE_EXT_JSON:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return rst.ReadFeatureCollection(data)
	}
	return nil, errors.New("features must be GeoJSON or ESRI Shapefile")
}

func readFishnet(path string) (grid *rst.Grid, err error) {
	defer func() { err = inputError(err) }()
	if engine == engineGDAL {
		return newToolbox().ReadFishnet(path, uidField, resolution)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case rst.FILE_EXT_SHP:
		return rst.ReadShapefileFishnet(path, uidField, resolution)
	case rst.FILE_EXT_GEOJSON, rst.FILE_EXT_JSON:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return rst.ReadFishnet(data, uidField, resolution)
	}
	return nil, errors.New("fishnet must be GeoJSON or ESRI Shapefile")
}
