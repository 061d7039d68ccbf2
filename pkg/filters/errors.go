package filters

import "fmt"

// Kind classifies a validation failure.
type Kind int

const (
	InvalidInput Kind = iota + 1
	InvalidLayer
	MissingZoom
	InvalidZoom
	MissingFilter
	InvalidFilterShape
	InvalidOperator
	UnsupportedMix
	ConstructorMisuse
	InvalidExpression
)

var kindNames = map[Kind]string{
	InvalidInput:       "InvalidInput",
	InvalidLayer:       "InvalidLayer",
	MissingZoom:        "MissingZoom",
	InvalidZoom:        "InvalidZoom",
	MissingFilter:      "MissingFilter",
	InvalidFilterShape: "InvalidFilterShape",
	InvalidOperator:    "InvalidOperator",
	UnsupportedMix:     "UnsupportedMix",
	ConstructorMisuse:  "ConstructorMisuse",
	InvalidExpression:  "InvalidExpression",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Messages are matched verbatim by downstream tooling.
const (
	MsgInvalidInput          = "filters must be an object and cannot be null or undefined"
	MsgInvalidLayer          = "layer must be an object and cannot be null or undefined"
	MsgMissingMinZoom        = "Filter must include a minzoom property."
	MsgMissingMaxZoom        = "Filter must include a maxzoom property."
	MsgInvalidMinZoom        = "Value for 'minzoom' must be a positive number."
	MsgInvalidMaxZoom        = "Value for 'maxzoom' must be a positive number."
	MsgMissingFilter         = "Filters is not properly constructed."
	MsgMissingPropertyFilter = "Property-Filters is not properly constructed."
	MsgInvalidFilterShape    = "invalid filter value, must be an array or a boolean"
	MsgInvalidOperator       = "filter operator must be a string"
	MsgUnsupportedMix        = "Unable to create Filter object, ensure all filters are expression-based"
	MsgConstructorMisuse     = "Cannot call constructor as function, you need to use 'new' keyword"
)

// ValidationError reports the first rule a filter set violates. Layer is
// empty for failures that concern the whole set.
type ValidationError struct {
	Kind    Kind
	Layer   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError of the same kind, so the Err values below
// work with errors.Is regardless of layer or message.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput       = &ValidationError{Kind: InvalidInput, Message: MsgInvalidInput}
	ErrInvalidLayer       = &ValidationError{Kind: InvalidLayer, Message: MsgInvalidLayer}
	ErrMissingZoom        = &ValidationError{Kind: MissingZoom, Message: MsgMissingMinZoom}
	ErrInvalidZoom        = &ValidationError{Kind: InvalidZoom, Message: MsgInvalidMinZoom}
	ErrMissingFilter      = &ValidationError{Kind: MissingFilter, Message: MsgMissingFilter}
	ErrInvalidFilterShape = &ValidationError{Kind: InvalidFilterShape, Message: MsgInvalidFilterShape}
	ErrInvalidOperator    = &ValidationError{Kind: InvalidOperator, Message: MsgInvalidOperator}
	ErrUnsupportedMix     = &ValidationError{Kind: UnsupportedMix, Message: MsgUnsupportedMix}
	ErrConstructorMisuse  = &ValidationError{Kind: ConstructorMisuse, Message: MsgConstructorMisuse}
	ErrInvalidExpression  = &ValidationError{Kind: InvalidExpression}
)

func layerError(kind Kind, layer, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Layer: layer, Message: msg}
}
