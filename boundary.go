package rasteriser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/wgdzlh/rasteriser/log"
	"github.com/wgdzlh/rasteriser/utils"
	"go.uber.org/zap"
)

// BoundaryResolver turns area codes, or the single code "all", into the
// boundary geometry they name.
type BoundaryResolver interface {
	Resolve(ctx context.Context, codes []string, year int) (geom.Polygonal, error)
}

const (
	boundaryTag      = "Boundary:"
	boundaryPath     = "boundaries/lads"
	boundaryFormat   = "geojson"
	maxBoundaryBytes = 256 << 20
)

// NismodResolver queries the NISMOD-DB++ boundary API.
type NismodResolver struct {
	URL      string // API root, e.g. https://www.nismod.ac.uk/api/data
	Username string
	Password string
	Client   *http.Client
}

func NewNismodResolver(s *Settings) *NismodResolver {
	return &NismodResolver{
		URL:      s.API.URL,
		Username: s.API.Username,
		Password: s.API.Password,
		Client:   &http.Client{},
	}
}

func (r *NismodResolver) endpoint(codes []string, year int) (string, error) {
	u, err := url.Parse(strings.TrimRight(r.URL, "/") + "/" + boundaryPath)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("lad_codes", utils.JoinCodes(codes))
	q.Set("export_format", boundaryFormat)
	q.Set("year", strconv.Itoa(year))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *NismodResolver) Resolve(ctx context.Context, codes []string, year int) (geom.Polygonal, error) {
	api, err := r.endpoint(codes, year)
	if err != nil {
		return nil, err
	}
	log.Info(boundaryTag+"request boundary", zap.Strings("codes", codes), zap.Int("year", year))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return nil, err
	}
	if r.Username != "" || r.Password != "" {
		req.SetBasicAuth(r.Username, r.Password)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Error(boundaryTag+"boundary request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBoundaryBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error(boundaryTag+"boundary service error", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedReply, resp.StatusCode)
	}
	features, err := ReadFeatureCollection(body)
	if err != nil {
		return nil, err
	}
	var mp geom.MultiPolygon
	for _, f := range features {
		mp = append(mp, f.Geom.Polygons()...)
	}
	if len(mp) == 0 || polygonalBounds(mp) == nil {
		return nil, ErrEmptyGeometry
	}
	log.Info(boundaryTag+"boundary resolved", zap.Int("features", len(features)), zap.Int("polygons", len(mp)))
	return mp, nil
}
