package shaver

import (
	"encoding/json"
	"testing"

	"github.com/flightaware/vtshaver/pkg/expression"
	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/flightaware/vtshaver/pkg/tileutils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(g orb.Geometry, id int, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = id
	f.Properties = props
	return f
}

// testTile builds a small tile with three layers:
//
//	poi:   cafe (id 1), bar (id 2)
//	water: lake
//	road:  path, street
func testTile(t *testing.T) []byte {
	t.Helper()
	poi := geojson.NewFeatureCollection()
	poi.Append(feature(orb.Point{10, 10}, 1, geojson.Properties{"class": "cafe", "name": "Alpha", "rank": 1}))
	poi.Append(feature(orb.Point{20, 20}, 2, geojson.Properties{"class": "bar", "name": "Bravo", "rank": 2}))

	water := geojson.NewFeatureCollection()
	water.Append(feature(orb.Polygon{{{0, 0}, {0, 100}, {100, 100}, {100, 0}, {0, 0}}}, 3, geojson.Properties{"class": "lake", "name": "Lake"}))

	road := geojson.NewFeatureCollection()
	road.Append(feature(orb.LineString{{0, 0}, {50, 50}}, 4, geojson.Properties{"class": "path", "name": "Trail"}))
	road.Append(feature(orb.LineString{{50, 50}, {90, 10}}, 5, geojson.Properties{"class": "street", "name": "Main"}))

	data, err := mvt.Marshal(mvt.Layers{
		mvt.NewLayer("poi", poi),
		mvt.NewLayer("water", water),
		mvt.NewLayer("road", road),
	})
	require.Nil(t, err)
	return data
}

func newFilters(t *testing.T, s string) *filters.Filters {
	t.Helper()
	var v any
	require.Nil(t, json.Unmarshal([]byte(s), &v))
	f, err := filters.New(v)
	require.Nil(t, err)
	return f
}

func decodeTile(t *testing.T, data []byte) map[string]*mvt.Layer {
	t.Helper()
	if tileutils.IsGzipped(data) {
		var err error
		data, err = tileutils.Gunzip(data)
		require.Nil(t, err)
	}
	layers, err := mvt.Unmarshal(data)
	require.Nil(t, err)
	out := map[string]*mvt.Layer{}
	for _, l := range layers {
		out[l.Name] = l
	}
	return out
}

func ids(t *testing.T, l *mvt.Layer) []float64 {
	t.Helper()
	out := make([]float64, 0, len(l.Features))
	for _, f := range l.Features {
		id, ok := expression.Number(f.ID)
		require.True(t, ok, "feature id %v", f.ID)
		out = append(out, id)
	}
	return out
}

func TestShaveOptions(t *testing.T) {
	tile := testTile(t)
	f := newFilters(t, `{"poi": {"filters": true, "minzoom": 0, "maxzoom": 22}}`)
	tests := []struct {
		name string
		tile []byte
		opts Options
		err  error
	}{
		{"nil tile", nil, Options{Filters: f, Zoom: Int(1)}, ErrInvalidBuffer},
		{"nil filters", tile, Options{Zoom: Int(1)}, ErrInvalidFilters},
		{"zero filters", tile, Options{Filters: &filters.Filters{}, Zoom: Int(1)}, ErrInvalidFilters},
		{"missing zoom", tile, Options{Filters: f}, ErrMissingZoom},
		{"negative zoom", tile, Options{Filters: f, Zoom: Int(-1)}, ErrInvalidZoom},
		{"negative maxzoom", tile, Options{Filters: f, Zoom: Int(1), MaxZoom: Int(-1)}, ErrInvalidMaxZoom},
		{"empty compress", tile, Options{Filters: f, Zoom: Int(1), Compress: &Compress{}}, ErrMissingCompress},
		{"unknown compress", tile, Options{Filters: f, Zoom: Int(1), Compress: &Compress{Type: "brotli"}}, ErrInvalidCompress},
		{"negative level", tile, Options{Filters: f, Zoom: Int(1), Compress: &Compress{Type: "gzip", Level: Int(-1)}}, ErrInvalidLevel},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			out, err := Shave(test.tile, test.opts)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, test.err)
			assert.Equal(t, test.err.Error(), err.Error())
		})
	}

	assert.Equal(t, "option 'zoom' must be a positive integer.", ErrInvalidZoom.Error())
	assert.Equal(t, "compress type must equal 'none' or 'gzip'", ErrInvalidCompress.Error())
}

func TestShaveFiltersFeaturesAndProperties(t *testing.T) {
	f := newFilters(t, `{
		"poi": {"filters": ["any", ["==", ["get", "class"], "cafe"]], "minzoom": 0, "maxzoom": 22, "properties": ["name"]},
		"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": true}
	}`)
	out, err := Shave(testTile(t), Options{Filters: f, Zoom: Int(14)})
	require.Nil(t, err)
	assert.False(t, tileutils.IsGzipped(out))

	layers := decodeTile(t, out)
	require.Len(t, layers, 2, "road has no filter entry")

	poi := layers["poi"]
	require.NotNil(t, poi)
	assert.Equal(t, []float64{1}, ids(t, poi))
	assert.Equal(t, geojson.Properties{"name": "Alpha"}, poi.Features[0].Properties)
	assert.Equal(t, orb.Point{10, 10}, poi.Features[0].Geometry)

	water := layers["water"]
	require.NotNil(t, water)
	assert.Equal(t, []float64{3}, ids(t, water))
	assert.Equal(t, geojson.Properties{"class": "lake", "name": "Lake"}, water.Features[0].Properties)
}

func TestShaveLegacyFilters(t *testing.T) {
	f := newFilters(t, `{
		"road": {"filters": ["any", ["==", "class", "street"], ["==", "$type", "Point"]], "minzoom": 0, "maxzoom": 22, "properties": []},
		"poi": {"filters": ["!=", "$id", 1], "minzoom": 0, "maxzoom": 22, "properties": ["rank"]}
	}`)
	out, err := Shave(testTile(t), Options{Filters: f, Zoom: Int(10)})
	require.Nil(t, err)
	layers := decodeTile(t, out)

	require.Contains(t, layers, "road")
	assert.Equal(t, []float64{5}, ids(t, layers["road"]))
	assert.Empty(t, layers["road"].Features[0].Properties)

	require.Contains(t, layers, "poi")
	assert.Equal(t, []float64{2}, ids(t, layers["poi"]))
	rank, ok := expression.Number(layers["poi"].Features[0].Properties["rank"])
	assert.True(t, ok)
	assert.Equal(t, 2.0, rank)
}

func TestShaveEmptyResult(t *testing.T) {
	tests := []struct {
		name    string
		filters string
		zoom    int
	}{
		{"no matching layers", `{"building": {"filters": true, "minzoom": 0, "maxzoom": 22}}`, 14},
		{"zoom below range", `{"poi": {"filters": true, "minzoom": 15, "maxzoom": 22}}`, 14},
		{"zoom above range", `{"poi": {"filters": true, "minzoom": 0, "maxzoom": 10}}`, 14},
		{"every feature filtered", `{"poi": {"filters": ["==", ["get", "class"], "museum"], "minzoom": 0, "maxzoom": 22}}`, 14},
		{"empty filter set", `{}`, 14},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			out, err := Shave(testTile(t), Options{Filters: newFilters(t, test.filters), Zoom: Int(test.zoom)})
			require.Nil(t, err)
			assert.NotNil(t, out)
			assert.Len(t, out, 0)
		})
	}
}

func TestShaveOverzoom(t *testing.T) {
	f := newFilters(t, `{
		"road": {
			"filters": ["any", ["all", ["==", ["get", "class"], "path"], [">=", ["zoom"], 18]]],
			"minzoom": 16, "maxzoom": 22, "properties": ["class"]
		}
	}`)

	// the layer starts above the tileset's maximum zoom, so the z14 tile is
	// overzoomed and evaluated up to z22
	out, err := Shave(testTile(t), Options{Filters: f, Zoom: Int(14), MaxZoom: Int(14)})
	require.Nil(t, err)
	layers := decodeTile(t, out)
	require.Contains(t, layers, "road")
	assert.Equal(t, []float64{4}, ids(t, layers["road"]))
	assert.Equal(t, geojson.Properties{"class": "path"}, layers["road"].Features[0].Properties)

	out, err = Shave(testTile(t), Options{Filters: f, Zoom: Int(14)})
	require.Nil(t, err)
	assert.Len(t, out, 0, "without a tileset maxzoom the layer is out of range")

	out, err = Shave(testTile(t), Options{Filters: f, Zoom: Int(14), MaxZoom: Int(16)})
	require.Nil(t, err)
	assert.Len(t, out, 0, "z14 is not the tileset's maximum zoom")
}

func TestZoomSpan(t *testing.T) {
	f := newFilters(t, `{"road": {"filters": true, "minzoom": 10, "maxzoom": 18}}`)
	road, ok := f.Layer("road")
	require.True(t, ok)

	tests := []struct {
		name             string
		zoom             float64
		maxzoom          *int
		minimal, maximum float64
	}{
		{"no maxzoom", 12, nil, 12, 12},
		{"below maxzoom", 12, Int(14), 12, 12},
		{"at maxzoom", 14, Int(14), 14, 18},
		{"above maxzoom", 15, Int(14), 14, 18},
		{"maxzoom below layer", 8, Int(8), 8, 18},
	}
	for _, test := range tests {
		minimal, maximum := zoomSpan(test.zoom, test.maxzoom, road)
		assert.Equal(t, test.minimal, minimal, test.name)
		assert.Equal(t, test.maximum, maximum, test.name)
	}
}

func TestShaveGzip(t *testing.T) {
	f := newFilters(t, `{"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": ["name"]}}`)
	gzipped, err := tileutils.Gzip(testTile(t))
	require.Nil(t, err)

	out, err := Shave(gzipped, Options{Filters: f, Zoom: Int(3), Compress: &Compress{Type: CompressNone}})
	require.Nil(t, err)
	assert.False(t, tileutils.IsGzipped(out), "gzipped input is decompressed")
	plain := decodeTile(t, out)
	require.Contains(t, plain, "water")
	assert.Equal(t, geojson.Properties{"name": "Lake"}, plain["water"].Features[0].Properties)

	out, err = Shave(gzipped, Options{Filters: f, Zoom: Int(3), Compress: &Compress{Type: CompressGzip, Level: Int(1)}})
	require.Nil(t, err)
	assert.True(t, tileutils.IsGzipped(out))
	assert.Equal(t, plain, decodeTile(t, out))

	_, err = Shave([]byte{0x1f, 0x8b, 0x08, 0x00}, Options{Filters: f, Zoom: Int(3)})
	assert.NotNil(t, err)
}

func TestShaveAllowsSharedFilters(t *testing.T) {
	f := newFilters(t, `{"poi": {"filters": ["==", ["get", "class"], "bar"], "minzoom": 0, "maxzoom": 22, "properties": ["class"]}}`)
	tile := testTile(t)
	done := make(chan []byte)
	for i := 0; i < 8; i++ {
		go func() {
			out, err := Shave(tile, Options{Filters: f, Zoom: Int(12)})
			assert.Nil(t, err)
			done <- out
		}()
	}
	var first []byte
	for i := 0; i < 8; i++ {
		out := <-done
		if first == nil {
			first = out
		}
		assert.Equal(t, first, out)
	}
}

func TestSummarize(t *testing.T) {
	infos, err := Summarize(testTile(t))
	require.Nil(t, err)
	assert.Equal(t, []LayerInfo{
		{Name: "poi", Version: 2, Extent: 4096, Features: 2, Properties: []string{"class", "name", "rank"}},
		{Name: "water", Version: 2, Extent: 4096, Features: 1, Properties: []string{"class", "name"}},
		{Name: "road", Version: 2, Extent: 4096, Features: 2, Properties: []string{"class", "name"}},
	}, infos)

	gzipped, err := tileutils.Gzip(testTile(t))
	require.Nil(t, err)
	zipped, err := Summarize(gzipped)
	require.Nil(t, err)
	assert.Equal(t, infos, zipped)

	empty, err := Summarize([]byte{})
	require.Nil(t, err)
	assert.Empty(t, empty)
}
