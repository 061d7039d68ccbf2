package stylefilters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.Nil(t, json.Unmarshal([]byte(s), &v))
	return v
}

func compileJSON(t *testing.T, style string) string {
	t.Helper()
	out, err := json.Marshal(Compile(decode(t, style)))
	require.Nil(t, err)
	return string(out)
}

func TestCompileDegenerateInput(t *testing.T) {
	for _, style := range []any{
		map[string]any{},
		[]any{},
		"hello",
		nil,
		map[string]any{"layers": []any{}},
		map[string]any{"layers": "lol no layers here"},
		map[string]any{"layers": []any{map[string]any{"arbitrary": "layer"}}},
		map[string]any{"layers": []any{"not a layer", 7.0}},
	} {
		assert.Equal(t, Metadata{}, Compile(style), "%v", style)
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  string
	}{
		{
			name:  "defaults",
			style: `{"layers": [{"source-layer": "water"}]}`,
			want:  `{"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": []}}`,
		},
		{
			name:  "zoom range without filter",
			style: `{"layers": [{"source-layer": "water", "minzoom": 10, "maxzoom": 15}]}`,
			want:  `{"water": {"filters": true, "minzoom": 10, "maxzoom": 15, "properties": []}}`,
		},
		{
			name:  "single filter",
			style: `{"layers": [{"source-layer": "water", "filter": ["==", "color", "blue"]}]}`,
			want:  `{"water": {"filters": ["any", ["==", "color", "blue"]], "minzoom": 0, "maxzoom": 22, "properties": ["color"]}}`,
		},
		{
			name: "unfiltered layer wins",
			style: `{"layers": [
				{"source-layer": "water"},
				{"source-layer": "water", "filter": ["==", "color", "blue"]}
			]}`,
			want: `{"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": ["color"]}}`,
		},
		{
			name: "unfiltered layer wins when it comes last",
			style: `{"layers": [
				{"source-layer": "water", "filter": ["==", "color", "blue"]},
				{"source-layer": "water"},
				{"source-layer": "water", "filter": ["==", "kind", "lake"]}
			]}`,
			want: `{"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": ["color", "kind"]}}`,
		},
		{
			name: "zoom ranges widen and wrap each branch",
			style: `{"layers": [
				{"source-layer": "water", "filter": ["!=", "color", "blue"], "minzoom": 10, "maxzoom": 15},
				{"source-layer": "water", "filter": ["==", "color", "blue"], "minzoom": 8, "maxzoom": 16}
			]}`,
			want: `{"water": {
				"filters": ["any",
					["all", ["!=", "color", "blue"], [">=", ["zoom"], 10], ["<=", ["zoom"], 15]],
					["all", ["==", "color", "blue"], [">=", ["zoom"], 8], ["<=", ["zoom"], 16]]
				],
				"minzoom": 8, "maxzoom": 16, "properties": ["color"]}}`,
		},
		{
			name: "default zoom range widens to the full span",
			style: `{"layers": [
				{"source-layer": "water", "filter": ["!=", "color", "blue"], "minzoom": 10, "maxzoom": 15},
				{"source-layer": "water", "filter": ["==", "color", "blue"]}
			]}`,
			want: `{"water": {
				"filters": ["any",
					["all", ["!=", "color", "blue"], [">=", ["zoom"], 10], ["<=", ["zoom"], 15]],
					["==", "color", "blue"]
				],
				"minzoom": 0, "maxzoom": 22, "properties": ["color"]}}`,
		},
		{
			name:  "only the narrower bound is carried",
			style: `{"layers": [{"source-layer": "road", "filter": ["==", ["get", "class"], "path"], "minzoom": 12.5}]}`,
			want: `{"road": {
				"filters": ["any", ["all", ["==", ["get", "class"], "path"], [">=", ["zoom"], 12.5]]],
				"minzoom": 12.5, "maxzoom": 22, "properties": ["class"]}}`,
		},
		{
			name:  "false filter is no filter",
			style: `{"layers": [{"source-layer": "water", "filter": false}]}`,
			want:  `{"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": []}}`,
		},
		{
			name: "synthetic identifiers are not attributes",
			style: `{"layers": [
				{"source-layer": "poi", "filter": ["all", ["==", "$id", 0], ["==", "$type", "Point"], ["in", "maki", "cafe", "bar"]]}
			]}`,
			want: `{"poi": {
				"filters": ["any", ["all", ["==", "$id", 0], ["==", "$type", "Point"], ["in", "maki", "cafe", "bar"]]],
				"minzoom": 0, "maxzoom": 22, "properties": ["maki"]}}`,
		},
		{
			name: "camera expressions",
			style: `{"layers": [
				{
					"source-layer": "water",
					"filter": [
						"all",
						["case", [">=", ["distance-from-center"], 5], false, [">=", ["pitch"], 45], false, true],
						["match", ["get", "distance"], [1, 4, ["distance-from-center"]], false, true],
						["coalesce", ["get", "display"], [">=", ["distance-from-center"], 3]],
						["any", ["boolean", false], [">=", ["pitch"], 5]],
						["all", ["boolean", true], ["<", ["pitch"], 5]],
						["==", "color", "blue"]
					]
				},
				{
					"source-layer": "landcover",
					"filter": [">=", ["distance-from-center"], ["case", ["==", "color", "blue"], 2, 4]]
				},
				{
					"source-layer": "landuse_overlay",
					"filter": [
						"case",
						["<=", ["pitch"], 10],
						["==", ["distance-from-center"], 4],
						["to-boolean", ["get", "display"]],
						true,
						false
					]
				}
			]}`,
			want: `{
				"water": {
					"filters": ["any", ["all",
						["literal", true],
						["literal", true],
						["literal", true],
						["any", ["boolean", false], ["literal", true]],
						["all", ["boolean", true], ["literal", true]],
						["==", "color", "blue"]
					]],
					"minzoom": 0, "maxzoom": 22, "properties": ["distance", "display", "color"]
				},
				"landcover": {"filters": ["any", ["literal", true]], "minzoom": 0, "maxzoom": 22, "properties": ["color"]},
				"landuse_overlay": {"filters": ["any", ["literal", true]], "minzoom": 0, "maxzoom": 22, "properties": ["display"]}
			}`,
		},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.JSONEq(t, test.want, compileJSON(t, test.style))
		})
	}
}

func TestCompileProperties(t *testing.T) {
	meta := Compile(decode(t, `{"layers": [{
		"source-layer": "landuse",
		"paint": {
			"exp-test1": ["==", ["get", "p1"], "false"],
			"exp-test1-fake": ["==", ["get", "p1-fake", {"obj": 1}], "false"],
			"exp-test2": ["==", ["has", "p2"], "false"],
			"exp-test2-fake": ["==", ["has", "p2-fake", {"obj": 1}], "false"],
			"exp-test3": ["==", ["feature-state", "p3"], "false"],
			"exp-test4": ["feature-state", "p4"],
			"exp-test5": {"property": "p5"}
		}
	}, {
		"source-layer": "water",
		"paint": {
			"exp-test0": ["properties"],
			"exp-test1": ["==", ["get", "p1"], "false"]
		}
	}, {
		"source-layer": "road",
		"layout": {
			"text-field": "{name_en} ({ref})",
			"text-font": ["Open Sans {weight}"],
			"icon-image": "{{shield}}",
			"text-size": {"base": 1, "stops": [[10, 12], [14, 16]]}
		}
	}, {
		"source-layer": "poi",
		"paint": {
			"circle-color": ["case", ["boolean", ["feature-state", "hover"], false], "red", ["get", "color"]],
			"circle-radius": ["let", "r", ["get", "rank"], ["*", ["var", "r"], 2]]
		},
		"layout": {
			"icon-image": {"property": 7}
		}
	}]}`))

	require.Contains(t, meta, "landuse")
	assert.Equal(t, Properties{Names: []any{"p1", "p2", "p3", "p4", "p5"}}, meta["landuse"].Properties)

	require.Contains(t, meta, "water")
	assert.True(t, meta["water"].Properties.All)

	require.Contains(t, meta, "road")
	assert.Equal(t, []string{"shield", "name_en", "ref", "weight"}, meta["road"].Properties.Strings())

	require.Contains(t, meta, "poi")
	assert.True(t, meta["poi"].Properties.All, "a property function without a name needs every attribute")
}

func TestCompileExtractionEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		paint string
		want  []any
	}{
		{"get", `{"exp": ["get", "p1"]}`, []any{"p1"}},
		{"get with object", `{"exp": ["get", "p1", {"obj": 1}]}`, []any{}},
		{"get with expression object", `{"exp": ["get", "p1", ["literal", {"obj": 1}]]}`, []any{"p1"}},
		{"get with computed name", `{"exp": ["get", ["concat", "name_", ["get", "lang"]]]}`, []any{"lang"}},
		{"feature-state pushes anything", `{"exp": ["feature-state", 5]}`, []any{5.0}},
		{"nested arrays", `{"exp": [["get", "a"], ["get", "b"]]}`, []any{"a", "b"}},
		{"deduplicated", `{"a": ["get", "x"], "b": ["has", "x"], "c": "{x}"}`, []any{"x"}},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			style := `{"layers": [{"source-layer": "l", "paint": ` + test.paint + `}]}`
			meta := Compile(decode(t, style))
			require.Contains(t, meta, "l")
			assert.Equal(t, test.want, meta["l"].Properties.Names)
		})
	}

	meta := Compile(decode(t, `{"layers": [{"source-layer": "l", "paint": {"exp": ["properties"]}}]}`))
	assert.Equal(t, AllProperties(), meta["l"].Properties)

	// a substring test nested in an expression filter reads as a legacy
	// comparison, so its needle is retained too
	meta = Compile(decode(t, `{"layers": [{"source-layer": "l", "filter": ["all", ["==", ["get", "kind"], "lake"], ["in", "foo", "foobar"]]}]}`))
	assert.Contains(t, meta["l"].Properties.Names, "kind")
	assert.Contains(t, meta["l"].Properties.Names, "foo")
}

func TestCompileRetainHints(t *testing.T) {
	meta := Compile(decode(t, `{
		"metadata": {"vtshaver:retain": {
			"road": ["ref", "class", 5],
			"water": true,
			"housenum": ["number"],
			"ignored": "yes"
		}},
		"layers": [
			{"source-layer": "road", "filter": ["==", "class", "path"], "minzoom": 10},
			{"source-layer": "water", "paint": {"fill-color": ["get", "color"]}}
		]
	}`))

	assert.ElementsMatch(t, []string{"road", "water", "housenum"}, meta.Layers())
	assert.Equal(t, []any{"class", "ref"}, meta["road"].Properties.Names)
	assert.Equal(t, 10.0, meta["road"].MinZoom)
	assert.True(t, meta["water"].Properties.All)
	assert.Equal(t, &Layer{
		Filters:    true,
		MinZoom:    DefaultMinZoom,
		MaxZoom:    DefaultMaxZoom,
		Properties: Properties{Names: []any{"number"}},
	}, meta["housenum"])
}

func TestCompileIsDeterministic(t *testing.T) {
	style := `{"layers": [
		{"source-layer": "road", "filter": ["==", "class", "path"], "minzoom": 10, "layout": {"a": "{x}", "b": "{y}", "c": ["get", "z"]}},
		{"source-layer": "road", "filter": ["==", ["get", "class"], "street"], "paint": {"q": ["get", "w"], "p": ["get", "v"]}},
		{"source-layer": "water"}
	]}`
	first := compileJSON(t, style)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, compileJSON(t, style))
	}
	assert.Equal(t, Compile(decode(t, style)), Compile(decode(t, style)))
}

func TestCompileDoesNotModifyStyle(t *testing.T) {
	style := decode(t, `{"layers": [
		{"source-layer": "water", "filter": ["any", [">=", ["pitch"], 5], ["==", "a", 1]], "maxzoom": 12},
		{"source-layer": "water", "filter": ["==", "b", 2]}
	]}`)
	before := decode(t, `{"layers": [
		{"source-layer": "water", "filter": ["any", [">=", ["pitch"], 5], ["==", "a", 1]], "maxzoom": 12},
		{"source-layer": "water", "filter": ["==", "b", 2]}
	]}`)
	Compile(style)
	assert.Equal(t, before, style)
}

func TestMetadata(t *testing.T) {
	meta := Compile(decode(t, `{"layers": [
		{"source-layer": "water"},
		{"source-layer": "road", "filter": ["==", "class", "path"]},
		{"source-layer": "building", "paint": {"x": ["properties"]}}
	]}`))

	assert.Equal(t, []string{"building", "road", "water"}, meta.Layers())

	restricted := meta.Restrict([]string{"road", "missing"})
	assert.Equal(t, []string{"road"}, restricted.Layers())
	assert.Same(t, meta["road"], restricted["road"])

	assert.Equal(t, map[string]any{
		"water": map[string]any{
			"filters":    true,
			"minzoom":    0.0,
			"maxzoom":    22.0,
			"properties": []any{},
		},
		"road": map[string]any{
			"filters":    []any{"any", []any{"==", "class", "path"}},
			"minzoom":    0.0,
			"maxzoom":    22.0,
			"properties": []any{"class"},
		},
		"building": map[string]any{
			"filters":    true,
			"minzoom":    0.0,
			"maxzoom":    22.0,
			"properties": true,
		},
	}, meta.Raw())
}

func TestPropertiesJSON(t *testing.T) {
	var meta Metadata
	require.Nil(t, json.Unmarshal([]byte(`{
		"water": {"filters": true, "minzoom": 0, "maxzoom": 22, "properties": true},
		"road": {"filters": ["any", ["==", "class", "path"]], "minzoom": 3, "maxzoom": 14, "properties": ["class"]}
	}`), &meta))
	assert.True(t, meta["water"].Properties.All)
	assert.Equal(t, []string{"class"}, meta["road"].Properties.Strings())
	assert.Equal(t, 3.0, meta["road"].MinZoom)

	var p Properties
	assert.NotNil(t, json.Unmarshal([]byte(`false`), &p))
	assert.NotNil(t, json.Unmarshal([]byte(`"class"`), &p))

	out, err := json.Marshal(Properties{})
	require.Nil(t, err)
	assert.Equal(t, `[]`, string(out))
}
