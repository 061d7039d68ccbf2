package expression

import (
	"github.com/pkg/errors"
)

var (
	// ErrOperatorNotString is returned when a legacy filter does not start
	// with an operator name.
	ErrOperatorNotString = errors.New("filter operator must be a string")

	// ErrPropertyNotString is returned when a legacy filter names its
	// attribute with anything but a string. In practice this means an
	// expression was placed where legacy syntax expects a property name.
	ErrPropertyNotString = errors.New("filter property must be a string")
)

// IsExpressionFilter reports whether filter uses expression syntax rather
// than the legacy filter syntax. The rules follow the GL renderers: some
// operators only exist in one syntax, comparisons are legacy when they
// compare a named property against a scalar, and any/all are expressions
// only when every branch is.
func IsExpressionFilter(filter any) bool {
	arr, ok := filter.([]any)
	if !ok || len(arr) == 0 {
		return false
	}
	op, ok := arr[0].(string)
	if !ok {
		return false
	}

	switch op {
	case "has":
		if len(arr) < 2 {
			return false
		}
		name, ok := arr[1].(string)
		return ok && name != "$id" && name != "$type"
	case "in":
		if len(arr) < 3 {
			return false
		}
		_, named := arr[1].(string)
		return !named || isArray(arr[2])
	case "!in", "!has", "none":
		return false
	case "==", "!=", ">", ">=", "<", "<=":
		return len(arr) != 3 || isArray(arr[1]) || isArray(arr[2])
	case "any", "all":
		for _, f := range arr[1:] {
			if _, isBool := f.(bool); !isBool && !IsExpressionFilter(f) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// NormalizeFilter rewrites filter into expression syntax. Expression
// filters are returned untouched; legacy filters are converted. Branches of
// legacy any/all/none are normalized one by one, so a legacy filter that was
// combined with expression conjuncts (zoom bounds, for instance) converts
// cleanly. A legacy node that holds an expression where a property name
// belongs fails with ErrPropertyNotString.
func NormalizeFilter(filter any) (any, error) {
	if b, ok := filter.(bool); ok {
		return b, nil
	}
	if IsExpressionFilter(filter) {
		return filter, nil
	}
	return convertLegacy(filter)
}

func convertLegacy(filter any) (any, error) {
	arr, ok := filter.([]any)
	if !ok || len(arr) == 0 {
		return nil, ErrOperatorNotString
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, ErrOperatorNotString
	}
	if len(arr) <= 1 {
		return op != "any", nil
	}

	switch op {
	case "==", "<", ">", "<=", ">=":
		return legacyComparison(op, arr)
	case "!=":
		eq, err := legacyComparison("==", arr)
		if err != nil {
			return nil, err
		}
		return []any{"!", eq}, nil
	case "any", "all":
		return legacyCombination(op, arr[1:])
	case "none":
		branches, err := legacyCombination("any", arr[1:])
		if err != nil {
			return nil, err
		}
		return []any{"!", branches}, nil
	case "in":
		return legacyIn(arr)
	case "!in":
		in, err := legacyIn(arr)
		if err != nil {
			return nil, err
		}
		return []any{"!", in}, nil
	case "has":
		return legacyHas(arr)
	case "!has":
		has, err := legacyHas(arr)
		if err != nil {
			return nil, err
		}
		return []any{"!", has}, nil
	default:
		return true, nil
	}
}

func legacyCombination(op string, branches []any) (any, error) {
	out := make([]any, 0, len(branches)+1)
	out = append(out, op)
	for i, b := range branches {
		converted, err := NormalizeFilter(b)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s[%d]", op, i+1)
		}
		out = append(out, converted)
	}
	return out, nil
}

func legacyProperty(arr []any) (any, error) {
	if len(arr) < 2 {
		return nil, ErrPropertyNotString
	}
	name, ok := arr[1].(string)
	if !ok {
		return nil, ErrPropertyNotString
	}
	switch name {
	case "$type":
		return []any{"geometry-type"}, nil
	case "$id":
		return []any{"id"}, nil
	default:
		return []any{"get", name}, nil
	}
}

func legacyComparison(op string, arr []any) (any, error) {
	lhs, err := legacyProperty(arr)
	if err != nil {
		return nil, err
	}
	var value any
	if len(arr) > 2 {
		value = legacyValue(arr[2])
	}
	return []any{op, lhs, value}, nil
}

func legacyIn(arr []any) (any, error) {
	lhs, err := legacyProperty(arr)
	if err != nil {
		return nil, err
	}
	out := []any{"any"}
	for _, v := range arr[2:] {
		out = append(out, []any{"==", lhs, legacyValue(v)})
	}
	if len(out) == 1 {
		return false, nil
	}
	return out, nil
}

func legacyHas(arr []any) (any, error) {
	if len(arr) < 2 {
		return nil, ErrPropertyNotString
	}
	name, ok := arr[1].(string)
	if !ok {
		return nil, ErrPropertyNotString
	}
	switch name {
	case "$type":
		return true, nil
	case "$id":
		return []any{"!=", []any{"id"}, nil}, nil
	default:
		return []any{"has", name}, nil
	}
}

// legacyValue quotes compound values so they are not mistaken for
// expressions once converted.
func legacyValue(v any) any {
	switch v.(type) {
	case []any, map[string]any:
		return []any{"literal", v}
	default:
		return v
	}
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}
