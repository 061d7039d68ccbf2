// Package shaver removes the layers, features and attributes of a vector
// tile that a validated filter set says the style will never draw.
package shaver

import (
	"math"

	"github.com/flightaware/vtshaver/pkg/expression"
	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/flightaware/vtshaver/pkg/tileutils"
	gziplib "github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

const (
	CompressNone = "none"
	CompressGzip = "gzip"
)

// Options controls a single Shave call.
type Options struct {
	Filters *filters.Filters
	// Zoom is the zoom level of the tile. Required.
	Zoom *int
	// MaxZoom is the maximum zoom of the tileset. Tiles at the maximum zoom
	// are overzoomed by clients, so their features are evaluated up to the
	// layer's maximum zoom.
	MaxZoom  *int
	Compress *Compress
}

// Compress selects the output encoding. Type is "none" or "gzip"; Level
// defaults to the best compression.
type Compress struct {
	Type  string
	Level *int
}

// Int returns a pointer to v, for filling Options.
func Int(v int) *int {
	return &v
}

func (o Options) validate(tile []byte) error {
	if tile == nil {
		return ErrInvalidBuffer
	}
	// a Filters not built by filters.New is as unusable as none
	if o.Filters == nil || o.Filters.Check() != nil {
		return ErrInvalidFilters
	}
	if o.Zoom == nil {
		return ErrMissingZoom
	}
	if *o.Zoom < 0 {
		return ErrInvalidZoom
	}
	if o.MaxZoom != nil && *o.MaxZoom < 0 {
		return ErrInvalidMaxZoom
	}
	if c := o.Compress; c != nil {
		switch c.Type {
		case "":
			return ErrMissingCompress
		case CompressNone, CompressGzip:
		default:
			return ErrInvalidCompress
		}
		if c.Level != nil && *c.Level < 0 {
			return ErrInvalidLevel
		}
	}
	return nil
}

// Shave filters tile with opts.Filters at opts.Zoom. Gzipped input is
// detected and decompressed. Layers without a filter entry, layers outside
// their zoom range and layers left without features are dropped; an empty
// result is zero bytes.
func Shave(tile []byte, opts Options) ([]byte, error) {
	if err := opts.validate(tile); err != nil {
		return nil, err
	}

	data := tile
	if tileutils.IsGzipped(tile) {
		var err error
		if data, err = tileutils.Gunzip(tile); err != nil {
			return nil, errors.Wrap(err, "error decompressing tile")
		}
	}
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "error decoding tile")
	}

	zoom := float64(*opts.Zoom)
	out := make(mvt.Layers, 0, len(layers))
	for _, layer := range layers {
		if len(layer.Features) == 0 {
			continue
		}
		lf, ok := opts.Filters.Layer(layer.Name)
		if !ok {
			continue
		}
		overzoomed := opts.MaxZoom != nil && float64(*opts.MaxZoom) < lf.MinZoom()
		if !(zoom >= lf.MinZoom() && zoom <= lf.MaxZoom()) && !overzoomed {
			continue
		}
		if lf.Filter() == nil && lf.AllProperties() {
			out = append(out, layer)
			continue
		}
		minimal, maximum := zoomSpan(zoom, opts.MaxZoom, lf)
		if shaved := shaveLayer(layer, lf, minimal, maximum); len(shaved.Features) > 0 {
			out = append(out, shaved)
		}
	}
	if len(out) == 0 {
		return []byte{}, nil
	}

	encoded, err := mvt.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding tile")
	}
	if opts.Compress == nil || opts.Compress.Type != CompressGzip {
		return encoded, nil
	}
	level := gziplib.BestCompression
	if opts.Compress.Level != nil {
		level = *opts.Compress.Level
	}
	compressed, err := tileutils.GzipLevel(encoded, level)
	if err != nil {
		return nil, errors.Wrap(err, "error compressing tile")
	}
	return compressed, nil
}

// zoomSpan returns the zoom levels a layer's features are evaluated at. A
// tile at the tileset's maximum zoom is reused for every higher zoom, so
// its features are evaluated up to the layer's maximum zoom.
func zoomSpan(zoom float64, maxzoom *int, lf *filters.Layer) (float64, float64) {
	if maxzoom == nil {
		return zoom, zoom
	}
	mz := float64(*maxzoom)
	minimal := zoom
	if mz < zoom || mz < lf.MinZoom() {
		minimal = mz
	}
	maximum := minimal
	if mz < lf.MinZoom() || mz <= minimal {
		maximum = lf.MaxZoom()
	}
	return minimal, maximum
}

func shaveLayer(layer *mvt.Layer, lf *filters.Layer, minimal, maximum float64) *mvt.Layer {
	shaved := &mvt.Layer{
		Name:    layer.Name,
		Version: layer.Version,
		Extent:  layer.Extent,
	}
	for _, f := range layer.Features {
		gt := geometryType(f.Geometry)
		if gt == "" {
			continue
		}
		if !keep(lf.Filter(), f, gt, minimal, maximum) {
			continue
		}
		kept := geojson.NewFeature(f.Geometry)
		kept.ID = f.ID
		for k, v := range f.Properties {
			if lf.Keeps(k) {
				kept.Properties[k] = v
			}
		}
		shaved.Features = append(shaved.Features, kept)
	}
	return shaved
}

// keep evaluates filter at every integer zoom of [minimal, maximum] and
// reports whether any of them selects the feature.
func keep(filter expression.Expr, f *geojson.Feature, gt string, minimal, maximum float64) bool {
	if filter == nil {
		return true
	}
	ctx := &expression.Context{
		GeometryType: gt,
		ID:           f.ID,
		Properties:   f.Properties,
	}
	for z := math.Floor(minimal); z <= math.Ceil(maximum); z++ {
		ctx.Zoom = z
		if expression.EvalFilter(filter, ctx) {
			return true
		}
	}
	return false
}

func geometryType(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return "Point"
	case orb.LineString, orb.MultiLineString:
		return "LineString"
	case orb.Polygon, orb.MultiPolygon:
		return "Polygon"
	default:
		return ""
	}
}
