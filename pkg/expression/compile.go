package expression

import (
	"fmt"

	"github.com/pkg/errors"
)

var errVarArgument = errors.New("'var' expression requires exactly one string literal argument.")

// An Expr is a compiled style expression.
type Expr interface {
	Eval(ctx *Context) (any, error)
}

// arity is the accepted argument count of an operator, head excluded.
// max < 0 means unbounded.
type arity struct{ min, max int }

// evaluable lists the operators the shaver can evaluate against a tile
// feature, with their arity. Known operators missing from this table
// compile to an opaque node.
var evaluable = map[Op]arity{
	OpGet:          {1, 2},
	OpHas:          {1, 2},
	OpProperties:   {0, 0},
	OpFeatureState: {1, 1},
	OpGeometryType: {0, 0},
	OpID:           {0, 0},
	OpZoom:         {0, 0},
	OpAt:           {2, 2},
	OpIn:           {2, 2},
	OpIndexOf:      {2, 3},
	OpSlice:        {2, 3},
	OpLength:       {1, 1},
	OpAll:          {0, -1},
	OpAny:          {0, -1},
	OpNot:          {1, 1},
	OpEqual:        {2, 3},
	OpNotEqual:     {2, 3},
	OpLess:         {2, 3},
	OpLessEqual:    {2, 3},
	OpGreater:      {2, 3},
	OpGreaterEqual: {2, 3},
	OpCase:         {3, -1},
	OpCoalesce:     {1, -1},
	OpBoolean:      {1, -1},
	OpNumber:       {1, -1},
	OpString:       {1, -1},
	OpObject:       {1, -1},
	OpTypeOf:       {1, 1},
	OpToBoolean:    {1, 1},
	OpToNumber:     {1, -1},
	OpToString:     {1, 1},
	OpAdd:          {2, -1},
	OpMultiply:     {2, -1},
	OpSubtract:     {1, 2},
	OpDivide:       {2, 2},
	OpMod:          {2, 2},
	OpPow:          {2, 2},
	OpSqrt:         {1, 1},
	OpLog10:        {1, 1},
	OpLn:           {1, 1},
	OpLog2:         {1, 1},
	OpSin:          {1, 1},
	OpCos:          {1, 1},
	OpTan:          {1, 1},
	OpAsin:         {1, 1},
	OpAcos:         {1, 1},
	OpAtan:         {1, 1},
	OpMin:          {1, -1},
	OpMax:          {1, -1},
	OpRound:        {1, 1},
	OpAbs:          {1, 1},
	OpCeil:         {1, 1},
	OpFloor:        {1, 1},
	OpLn2:          {0, 0},
	OpPi:           {0, 0},
	OpE:            {0, 0},
	OpConcat:       {1, -1},
	OpUpcase:       {1, 1},
	OpDowncase:     {1, 1},
}

type literal struct {
	value any
}

type call struct {
	op   Op
	args []Expr
}

// opaque stands in for operators that only make sense while rendering.
type opaque struct {
	name string
}

type match struct {
	input    Expr
	labels   [][]any
	outputs  []Expr
	fallback Expr
}

type step struct {
	input   Expr
	stops   []float64
	outputs []Expr
}

type let struct {
	names  []string
	values []Expr
	body   Expr
}

type varRef struct {
	name string
}

// Literal returns an expression that always evaluates to v.
func Literal(v any) Expr {
	return literal{value: normalize(v)}
}

// Compile turns a decoded JSON expression into an Expr.
func Compile(v any) (Expr, error) {
	switch t := v.(type) {
	case []any:
		return compileArray(t)
	case map[string]any:
		return nil, errors.New(`Bare objects invalid. Use ["literal", {...}] instead.`)
	default:
		return literal{value: normalize(v)}, nil
	}
}

func compileArray(arr []any) (Expr, error) {
	if len(arr) == 0 {
		return nil, errors.New(`Expected an array with at least one element. If you wanted a literal array, use ["literal", []].`)
	}
	name, ok := arr[0].(string)
	if !ok {
		return nil, errors.Errorf(`Expression name must be a string, but found %s instead. If you wanted a literal array, use ["literal", [...]].`, typeName(arr[0]))
	}
	op := LookupOp(name)
	if op == OpUnknown {
		return nil, errors.Errorf(`Unknown expression "%s". If you wanted a literal array, use ["literal", [...]].`, name)
	}
	args := arr[1:]

	switch op {
	case OpLiteral:
		if len(args) != 1 {
			return nil, errors.Errorf("'literal' expression requires exactly one argument, but found %d instead.", len(args))
		}
		return literal{value: normalize(args[0])}, nil
	case OpMatch:
		return compileMatch(args)
	case OpStep:
		return compileStep(args)
	case OpLet:
		return compileLet(args)
	case OpVar:
		if len(args) != 1 {
			return nil, errVarArgument
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, errVarArgument
		}
		return varRef{name: name}, nil
	}

	ar, ok := evaluable[op]
	if !ok {
		return opaque{name: name}, nil
	}
	if len(args) < ar.min || (ar.max >= 0 && len(args) > ar.max) {
		return nil, errors.Errorf("%s: expected %s, but found %d instead.", name, ar, len(args))
	}
	if op == OpCase && len(args)%2 == 0 {
		return nil, errors.New("case: expected an odd number of arguments.")
	}

	compiled, err := compileArgs(name, args)
	if err != nil {
		return nil, err
	}
	return call{op: op, args: compiled}, nil
}

func compileArgs(name string, args []any) ([]Expr, error) {
	out := make([]Expr, len(args))
	for i, a := range args {
		e, err := Compile(a)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s[%d]", name, i+1)
		}
		out[i] = e
	}
	return out, nil
}

func compileMatch(args []any) (Expr, error) {
	if len(args) < 4 || len(args)%2 != 0 {
		return nil, errors.Errorf("match: expected an even number of arguments, at least 4, but found %d instead.", len(args))
	}
	input, err := Compile(args[0])
	if err != nil {
		return nil, errors.WithMessage(err, "match[1]")
	}
	m := match{input: input}
	for i := 1; i < len(args)-1; i += 2 {
		labels, err := matchLabels(args[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "match[%d]", i+1)
		}
		out, err := Compile(args[i+1])
		if err != nil {
			return nil, errors.WithMessagef(err, "match[%d]", i+2)
		}
		m.labels = append(m.labels, labels)
		m.outputs = append(m.outputs, out)
	}
	m.fallback, err = Compile(args[len(args)-1])
	if err != nil {
		return nil, errors.WithMessagef(err, "match[%d]", len(args))
	}
	return m, nil
}

func matchLabels(v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	if len(list) == 0 {
		return nil, errors.New("Expected at least one branch label.")
	}
	out := make([]any, len(list))
	for i, l := range list {
		switch l := normalize(l).(type) {
		case string, float64:
			out[i] = l
		default:
			return nil, errors.New("Branch labels must be numbers or strings.")
		}
	}
	return out, nil
}

func compileStep(args []any) (Expr, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, errors.Errorf("step: expected an even number of arguments, at least 2, but found %d instead.", len(args))
	}
	input, err := Compile(args[0])
	if err != nil {
		return nil, errors.WithMessage(err, "step[1]")
	}
	first, err := Compile(args[1])
	if err != nil {
		return nil, errors.WithMessage(err, "step[2]")
	}
	s := step{input: input, outputs: []Expr{first}}
	for i := 2; i < len(args); i += 2 {
		stop, ok := Number(args[i])
		if !ok {
			return nil, errors.New(`Input/output pairs for "step" expressions must be defined using literal numeric values (not computed expressions) for the input values.`)
		}
		if len(s.stops) > 0 && stop <= s.stops[len(s.stops)-1] {
			return nil, errors.New(`Input/output pairs for "step" expressions must be arranged with input values in strictly ascending order.`)
		}
		out, err := Compile(args[i+1])
		if err != nil {
			return nil, errors.WithMessagef(err, "step[%d]", i+2)
		}
		s.stops = append(s.stops, stop)
		s.outputs = append(s.outputs, out)
	}
	return s, nil
}

func compileLet(args []any) (Expr, error) {
	if len(args) < 3 || len(args)%2 == 0 {
		return nil, errors.Errorf("let: expected an odd number of arguments, at least 3, but found %d instead.", len(args))
	}
	l := let{}
	for i := 0; i < len(args)-1; i += 2 {
		name, ok := args[i].(string)
		if !ok {
			return nil, errors.Errorf("let: expected string, but found %s instead.", typeName(args[i]))
		}
		value, err := Compile(args[i+1])
		if err != nil {
			return nil, errors.WithMessagef(err, "let[%d]", i+2)
		}
		l.names = append(l.names, name)
		l.values = append(l.values, value)
	}
	body, err := Compile(args[len(args)-1])
	if err != nil {
		return nil, errors.WithMessagef(err, "let[%d]", len(args))
	}
	l.body = body
	return l, nil
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d arguments", a.min)
	case a.min == a.max:
		return fmt.Sprintf("%d arguments", a.min)
	default:
		return fmt.Sprintf("%d to %d arguments", a.min, a.max)
	}
}
