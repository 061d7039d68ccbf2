// Package stylefilters compiles a map style document into per source-layer
// filter metadata: the merged filter, the zoom range and the attributes the
// style reads.
package stylefilters

import (
	"github.com/flightaware/vtshaver/pkg/expression"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// RetainKey is the key under the style's "metadata" object that holds
// attribute retain hints: a mapping from source-layer name to true or a
// list of attribute names.
const RetainKey = "vtshaver:retain"

const (
	DefaultMinZoom = 0
	DefaultMaxZoom = 22
)

// Layer is the compiled filter metadata of one source-layer.
type Layer struct {
	// Filters is true, or ["any", expr...] with one branch per filtered
	// style layer.
	Filters    any        `json:"filters"`
	MinZoom    float64    `json:"minzoom"`
	MaxZoom    float64    `json:"maxzoom"`
	Properties Properties `json:"properties"`
}

// Metadata maps source-layer names to their compiled filter metadata.
type Metadata map[string]*Layer

// Layers returns the source-layer names in sorted order.
func (m Metadata) Layers() []string {
	names := maps.Keys(m)
	slices.Sort(names)
	return names
}

// Restrict returns the metadata of the named source-layers only. Unknown
// names are ignored.
func (m Metadata) Restrict(names []string) Metadata {
	out := make(Metadata, len(names))
	for _, name := range names {
		if l, ok := m[name]; ok {
			out[name] = l
		}
	}
	return out
}

// Raw returns the metadata as plain decoded-JSON values, the shape a JSON
// round trip of m would produce.
func (m Metadata) Raw() map[string]any {
	out := make(map[string]any, len(m))
	for name, l := range m {
		if l == nil {
			out[name] = nil
			continue
		}
		out[name] = map[string]any{
			"filters":    l.Filters,
			"minzoom":    l.MinZoom,
			"maxzoom":    l.MaxZoom,
			"properties": l.Properties.raw(),
		}
	}
	return out
}

// Compile turns a decoded style document into filter metadata. It never
// fails: anything that is not a style document compiles to empty metadata
// and malformed layers are skipped.
func Compile(style any) Metadata {
	meta := Metadata{}
	doc, ok := style.(map[string]any)
	if !ok {
		return meta
	}
	used := map[string]*propertySet{}

	layers, _ := doc["layers"].([]any)
	for _, v := range layers {
		styleLayer, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, ok := styleLayer["source-layer"].(string)
		if !ok || name == "" {
			continue
		}
		minzoom := zoomOr(styleLayer["minzoom"], DefaultMinZoom)
		maxzoom := zoomOr(styleLayer["maxzoom"], DefaultMaxZoom)
		filter := styleLayer["filter"]
		hasFilter := present(filter)

		var branch any
		if hasFilter {
			branch = wrapZoom(expression.ReplaceCameraExpressions(filter), minzoom, maxzoom)
		}

		l, ok := meta[name]
		if !ok {
			l = &Layer{Filters: true, MinZoom: minzoom, MaxZoom: maxzoom}
			if hasFilter {
				l.Filters = []any{"any", branch}
			}
			meta[name] = l
			used[name] = newPropertySet()
		} else {
			if minzoom < l.MinZoom {
				l.MinZoom = minzoom
			}
			if maxzoom > l.MaxZoom {
				l.MaxZoom = maxzoom
			}
			switch {
			case l.Filters == true:
			case !hasFilter:
				l.Filters = true
			default:
				l.Filters = append(l.Filters.([]any), branch)
			}
		}

		props := used[name]
		props.walk(styleLayer["paint"])
		props.walk(styleLayer["layout"])
		if hasFilter {
			props.walkFilter(filter)
		}
	}

	if md, ok := doc["metadata"].(map[string]any); ok {
		if hints, ok := md[RetainKey].(map[string]any); ok {
			retain(meta, used, hints)
		}
	}

	for name, l := range meta {
		l.Properties = used[name].properties()
	}
	return meta
}

func retain(meta Metadata, used map[string]*propertySet, hints map[string]any) {
	for _, name := range sortedKeys(hints) {
		hint := hints[name]
		list, isList := hint.([]any)
		if hint != true && !isList {
			continue
		}
		if _, ok := meta[name]; !ok {
			meta[name] = &Layer{Filters: true, MinZoom: DefaultMinZoom, MaxZoom: DefaultMaxZoom}
			used[name] = newPropertySet()
		}
		props := used[name]
		if hint == true {
			props.addAll()
			continue
		}
		for _, attr := range list {
			if s, ok := attr.(string); ok {
				props.add(s)
			}
		}
	}
}

// wrapZoom folds a style layer's own zoom range into its filter, carrying
// only the bounds narrower than the default range.
func wrapZoom(filter any, minzoom, maxzoom float64) any {
	if minzoom <= DefaultMinZoom && maxzoom >= DefaultMaxZoom {
		return filter
	}
	wrapped := []any{"all", filter}
	if minzoom > DefaultMinZoom {
		wrapped = append(wrapped, []any{">=", []any{"zoom"}, minzoom})
	}
	if maxzoom < DefaultMaxZoom {
		wrapped = append(wrapped, []any{"<=", []any{"zoom"}, maxzoom})
	}
	return wrapped
}

// zoomOr reads a zoom bound; zero and non-numeric values mean the default.
func zoomOr(v any, def float64) float64 {
	if z, ok := expression.Number(v); ok && z != 0 {
		return z
	}
	return def
}

// present reports whether a style layer's filter is set to something
// truthy.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := expression.Number(v); ok {
		return n != 0
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
