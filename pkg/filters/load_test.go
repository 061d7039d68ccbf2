package filters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loadStyle = `{
	"layers": [
		{"id": "water", "source-layer": "water", "filter": ["==", "class", "lake"], "minzoom": 4},
		{"id": "roads", "source-layer": "road", "paint": {"line-width": ["get", "width"]}},
		{"id": "background", "type": "background"}
	]
}`

func TestLoadStyle(t *testing.T) {
	style := filepath.Join(t.TempDir(), "style.json")
	require.Nil(t, os.WriteFile(style, []byte(loadStyle), 0644))

	fs, err := LoadStyle(style, nil)
	require.Nil(t, err)
	assert.Equal(t, []string{"road", "water"}, fs.Layers())

	water, ok := fs.Layer("water")
	require.True(t, ok)
	assert.Equal(t, float64(4), water.MinZoom())
	assert.Equal(t, []string{"class"}, water.Properties())
	assert.NotNil(t, water.Filter())

	road, ok := fs.Layer("road")
	require.True(t, ok)
	assert.Nil(t, road.Filter())
	assert.True(t, road.Keeps("width"))
	assert.False(t, road.Keeps("name"))

	restricted, err := LoadStyle(style, []string{"water", "poi"})
	require.Nil(t, err)
	assert.Equal(t, []string{"water"}, restricted.Layers())
}

func TestLoadStyleFeatureStateKeys(t *testing.T) {
	style := filepath.Join(t.TempDir(), "style.json")
	require.Nil(t, os.WriteFile(style, []byte(`{
		"layers": [
			{"id": "lakes", "source-layer": "water", "paint": {"fill-opacity": ["feature-state", ["get", "k"]]}},
			{"id": "pois", "source-layer": "poi", "paint": {"icon-opacity": ["feature-state", 1]}}
		]
	}`), 0644))

	fs, err := LoadStyle(style, nil)
	require.Nil(t, err)

	water, ok := fs.Layer("water")
	require.True(t, ok)
	assert.False(t, water.AllProperties())
	assert.Equal(t, []string{"k"}, water.Properties())

	poi, ok := fs.Layer("poi")
	require.True(t, ok)
	assert.False(t, poi.AllProperties())
	assert.Empty(t, poi.Properties())
}

func TestLoadStyleErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadStyle(filepath.Join(dir, "missing.json"), nil)
	assert.ErrorContains(t, err, "unable to read style")

	broken := filepath.Join(dir, "broken.json")
	require.Nil(t, os.WriteFile(broken, []byte("not json"), 0644))
	_, err = LoadStyle(broken, nil)
	assert.ErrorContains(t, err, "unable to parse style")
}
