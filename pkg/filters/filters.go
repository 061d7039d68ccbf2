// Package filters validates compiled filter metadata and turns it into the
// immutable filter set the shaver evaluates.
package filters

import (
	"github.com/flightaware/vtshaver/pkg/expression"
	"github.com/flightaware/vtshaver/pkg/stylefilters"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Filters is a validated filter set. It is read-only once built by New and
// safe to share between goroutines. The zero value is not usable.
type Filters struct {
	layers map[string]*Layer
}

// Layer is the validated filter of one source-layer.
type Layer struct {
	name       string
	filter     expression.Expr
	minzoom    float64
	maxzoom    float64
	all        bool
	properties []string
	keep       map[string]struct{}
}

// New validates v and builds a filter set from it. v may be
// stylefilters.Metadata, a pointer to it, or decoded JSON
// (map[string]any). The first violation is returned as a
// *ValidationError.
func New(v any) (*Filters, error) {
	var raw map[string]any
	switch t := v.(type) {
	case stylefilters.Metadata:
		if t == nil {
			return nil, ErrInvalidInput
		}
		raw = t.Raw()
	case *stylefilters.Metadata:
		if t == nil || *t == nil {
			return nil, ErrInvalidInput
		}
		raw = t.Raw()
	case map[string]any:
		if t == nil {
			return nil, ErrInvalidInput
		}
		raw = t
	default:
		return nil, ErrInvalidInput
	}

	f := &Filters{layers: make(map[string]*Layer, len(raw))}
	for _, name := range sortedKeys(raw) {
		l, err := newLayer(name, raw[name])
		if err != nil {
			return nil, err
		}
		f.layers[name] = l
	}
	return f, nil
}

// FromMetadata is New for compiler output.
func FromMetadata(meta stylefilters.Metadata) (*Filters, error) {
	return New(meta)
}

// Check reports whether f was built by New.
func (f *Filters) Check() error {
	if f == nil || f.layers == nil {
		return ErrConstructorMisuse
	}
	return nil
}

// Layer returns the filter of the named source-layer.
func (f *Filters) Layer(name string) (*Layer, bool) {
	if f == nil {
		return nil, false
	}
	l, ok := f.layers[name]
	return l, ok
}

// Layers returns the source-layer names in sorted order.
func (f *Filters) Layers() []string {
	if f == nil {
		return nil
	}
	names := maps.Keys(f.layers)
	slices.Sort(names)
	return names
}

func (f *Filters) Len() int {
	if f == nil {
		return 0
	}
	return len(f.layers)
}

func (l *Layer) Name() string { return l.name }

// Filter returns the compiled filter, nil when every feature is kept.
func (l *Layer) Filter() expression.Expr { return l.filter }

func (l *Layer) MinZoom() float64 { return l.minzoom }

func (l *Layer) MaxZoom() float64 { return l.maxzoom }

// AllProperties reports whether every attribute is retained.
func (l *Layer) AllProperties() bool { return l.all }

// Properties returns the retained attribute names. It is empty when
// AllProperties is true.
func (l *Layer) Properties() []string {
	return slices.Clone(l.properties)
}

// Keeps reports whether the attribute key survives shaving.
func (l *Layer) Keeps(key string) bool {
	if l.all {
		return true
	}
	_, ok := l.keep[key]
	return ok
}

func newLayer(name string, v any) (*Layer, error) {
	record, ok := v.(map[string]any)
	if !ok || record == nil {
		return nil, layerError(InvalidLayer, name, MsgInvalidLayer)
	}
	l := &Layer{name: name}

	var err error
	if l.minzoom, err = zoom(name, record, "minzoom", MsgMissingMinZoom, MsgInvalidMinZoom); err != nil {
		return nil, err
	}
	if l.maxzoom, err = zoom(name, record, "maxzoom", MsgMissingMaxZoom, MsgInvalidMaxZoom); err != nil {
		return nil, err
	}

	switch filter := record["filters"].(type) {
	case nil:
		return nil, layerError(MissingFilter, name, MsgMissingFilter)
	case bool:
		if !filter {
			return nil, layerError(InvalidFilterShape, name, MsgInvalidFilterShape)
		}
	case []any:
		if l.filter, err = compileFilter(name, filter); err != nil {
			return nil, err
		}
	default:
		return nil, layerError(InvalidFilterShape, name, MsgInvalidFilterShape)
	}

	if err := l.setProperties(record); err != nil {
		return nil, err
	}
	return l, nil
}

func zoom(layer string, record map[string]any, key, missing, invalid string) (float64, error) {
	v, ok := record[key]
	if !ok {
		return 0, layerError(MissingZoom, layer, missing)
	}
	z, ok := expression.Number(v)
	if !ok || z < 0 {
		return 0, layerError(InvalidZoom, layer, invalid)
	}
	return z, nil
}

// compileFilter converts legacy nodes to expressions and compiles the
// result.
func compileFilter(layer string, filter []any) (expression.Expr, error) {
	normalized, err := expression.NormalizeFilter(filter)
	switch {
	case errors.Is(err, expression.ErrPropertyNotString):
		return nil, layerError(UnsupportedMix, layer, MsgUnsupportedMix)
	case errors.Is(err, expression.ErrOperatorNotString):
		return nil, layerError(InvalidOperator, layer, MsgInvalidOperator)
	case err != nil:
		return nil, layerError(InvalidExpression, layer, err.Error())
	}
	if normalized == true {
		return nil, nil
	}
	expr, err := expression.Compile(normalized)
	if err != nil {
		return nil, layerError(InvalidExpression, layer, err.Error())
	}
	return expr, nil
}

// setProperties reads the retained attributes. A record without a
// properties key keeps every attribute.
func (l *Layer) setProperties(record map[string]any) error {
	v, ok := record["properties"]
	if !ok {
		l.all = true
		return nil
	}
	switch props := v.(type) {
	case nil:
		return layerError(MissingFilter, l.name, MsgMissingPropertyFilter)
	case bool:
		if !props {
			return layerError(InvalidFilterShape, l.name, MsgInvalidFilterShape)
		}
		l.all = true
	case []any:
		l.keep = make(map[string]struct{}, len(props))
		for _, p := range props {
			// feature-state keys are kept as written and can be any value;
			// only strings can name a tile attribute
			s, ok := p.(string)
			if !ok {
				continue
			}
			if _, dup := l.keep[s]; dup {
				continue
			}
			l.keep[s] = struct{}{}
			l.properties = append(l.properties, s)
		}
	case []string:
		return l.setProperties(map[string]any{"properties": toAny(props)})
	default:
		return layerError(InvalidFilterShape, l.name, MsgInvalidFilterShape)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
