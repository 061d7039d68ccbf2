package stylefilters

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/flightaware/vtshaver/pkg/expression"
	"github.com/pkg/errors"
)

var templateAttr = regexp.MustCompile(`\{([^{}]+?)\}`)

// Properties is the set of attributes a source-layer needs: either every
// attribute (All) or the listed names. Names normally holds strings; a
// feature-state key is recorded as written in the style, whatever its type.
type Properties struct {
	All   bool
	Names []any
}

// AllProperties returns the "every attribute" value.
func AllProperties() Properties {
	return Properties{All: true}
}

// Strings returns the string names, skipping anything else.
func (p Properties) Strings() []string {
	out := make([]string, 0, len(p.Names))
	for _, n := range p.Names {
		if s, ok := n.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p Properties) raw() any {
	if p.All {
		return true
	}
	names := p.Names
	if names == nil {
		names = []any{}
	}
	return names
}

// MarshalJSON encodes true or a list, never null.
func (p Properties) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.raw())
}

// UnmarshalJSON accepts true or a list of names.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		if !t {
			return errors.New("properties must be true or a list of names")
		}
		*p = AllProperties()
	case []any:
		*p = Properties{Names: t}
	default:
		return errors.Errorf("properties must be true or a list of names, got %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// propertySet accumulates the attributes one source-layer uses while its
// style layers are walked.
type propertySet struct {
	all   bool
	seen  map[string]struct{}
	names []any
}

func newPropertySet() *propertySet {
	return &propertySet{seen: map[string]struct{}{}}
}

func (p *propertySet) add(name string) {
	if _, ok := p.seen[name]; ok {
		return
	}
	p.seen[name] = struct{}{}
	p.names = append(p.names, name)
}

// push records a value as is. Only strings are deduplicated.
func (p *propertySet) push(v any) {
	if s, ok := v.(string); ok {
		p.add(s)
		return
	}
	p.names = append(p.names, v)
}

func (p *propertySet) addAll() {
	p.all = true
}

func (p *propertySet) properties() Properties {
	if p.all {
		return AllProperties()
	}
	names := make([]any, len(p.names))
	copy(names, p.names)
	return Properties{Names: names}
}

// walk extracts attribute usage from paint and layout values.
func (p *propertySet) walk(v any) {
	switch t := v.(type) {
	case string:
		for _, m := range templateAttr.FindAllStringSubmatch(t, -1) {
			p.add(m[1])
		}
	case []any:
		if expression.IsExpression(t) {
			p.walkExpression(t)
			return
		}
		for _, e := range t {
			p.walk(e)
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			if k == "property" {
				if name, ok := t[k].(string); ok {
					p.add(name)
				} else {
					p.addAll()
				}
				continue
			}
			p.walk(t[k])
		}
	}
}

// walkExpression extracts attribute usage from a style expression. Every
// array-valued argument is visited whether or not the operator itself
// contributed a name.
func (p *propertySet) walkExpression(expr []any) {
	op, _, _ := expression.Head(expr)
	switch op {
	case expression.OpGet, expression.OpHas:
		if len(expr) > 1 {
			name, isString := expr[1].(string)
			_, objectArg := argument(expr, 2).(map[string]any)
			if isString && !objectArg {
				p.add(name)
			}
		}
	case expression.OpFeatureState:
		if len(expr) > 1 {
			p.push(expr[1])
		}
	case expression.OpProperties:
		p.addAll()
	}
	for _, e := range expr {
		if sub, ok := e.([]any); ok {
			p.walkExpression(sub)
		}
	}
}

// walkFilter extracts attribute usage from a style layer filter: the
// expressions in it, then any legacy comparison nodes.
func (p *propertySet) walkFilter(filter any) {
	p.walk(filter)
	p.walkLegacy(filter)
}

// walkLegacy visits every array in a filter tree. A node in legacy syntax
// with at least three elements names its attribute in the second slot;
// names starting with $ are synthetic ($type, $id) and skipped. Nodes are
// checked one at a time, so a fragment like ["in", "foo", "foobar"] nested in
// an expression filter also retains "foo".
func (p *propertySet) walkLegacy(v any) {
	arr, ok := v.([]any)
	if !ok {
		return
	}
	if len(arr) >= 3 && !expression.IsExpressionFilter(arr) {
		if name, ok := arr[1].(string); ok && !strings.HasPrefix(name, "$") {
			p.add(name)
		}
	}
	for _, e := range arr {
		p.walkLegacy(e)
	}
}

func argument(expr []any, i int) any {
	if i < len(expr) {
		return expr[i]
	}
	return nil
}
