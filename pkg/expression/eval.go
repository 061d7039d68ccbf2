package expression

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned when an expression uses an operator that has
// no meaning outside of a renderer.
var ErrUnsupported = errors.New("expression cannot be evaluated outside of a renderer")

// Context is the feature and zoom an expression is evaluated against.
type Context struct {
	Zoom         float64
	GeometryType string // Point, LineString, Polygon or Unknown
	ID           any    // nil when the feature has no id
	Properties   map[string]any

	scope *scope
}

type scope struct {
	parent *scope
	names  []string
	values []any
}

func (s *scope) lookup(name string) (any, bool) {
	for ; s != nil; s = s.parent {
		for i := len(s.names) - 1; i >= 0; i-- {
			if s.names[i] == name {
				return s.values[i], true
			}
		}
	}
	return nil, false
}

// EvalFilter evaluates a compiled filter. A nil filter keeps everything. A
// filter keeps the feature when it evaluates to true or when it relies on
// an operator that cannot be evaluated here.
func EvalFilter(filter Expr, ctx *Context) bool {
	if filter == nil {
		return true
	}
	v, err := filter.Eval(ctx)
	if err != nil {
		return errors.Is(err, ErrUnsupported)
	}
	b, ok := v.(bool)
	return ok && b
}

func (l literal) Eval(*Context) (any, error) {
	return l.value, nil
}

func (o opaque) Eval(*Context) (any, error) {
	return nil, errors.WithMessage(ErrUnsupported, o.name)
}

func (v varRef) Eval(ctx *Context) (any, error) {
	val, ok := ctx.scope.lookup(v.name)
	if !ok {
		return nil, errors.Errorf(`Unknown variable "%s". Make sure "%s" has been bound in an enclosing "let" expression before using it.`, v.name, v.name)
	}
	return val, nil
}

func (l let) Eval(ctx *Context) (any, error) {
	bound := &scope{parent: ctx.scope, names: l.names, values: make([]any, len(l.values))}
	for i, e := range l.values {
		v, err := e.Eval(ctx)
		if err != nil {
			return nil, err
		}
		bound.values[i] = v
	}
	inner := *ctx
	inner.scope = bound
	return l.body.Eval(&inner)
}

func (m match) Eval(ctx *Context) (any, error) {
	input, err := m.input.Eval(ctx)
	if err != nil {
		return nil, err
	}
	input = normalize(input)
	for i, labels := range m.labels {
		for _, label := range labels {
			if equal(input, label) {
				return m.outputs[i].Eval(ctx)
			}
		}
	}
	return m.fallback.Eval(ctx)
}

func (s step) Eval(ctx *Context) (any, error) {
	input, err := evalNumber(s.input, ctx)
	if err != nil {
		return nil, err
	}
	out := s.outputs[0]
	for i, stop := range s.stops {
		if input < stop {
			break
		}
		out = s.outputs[i+1]
	}
	return out.Eval(ctx)
}

func (c call) Eval(ctx *Context) (any, error) {
	switch c.op {
	case OpGet:
		return c.lookup(ctx, false)
	case OpHas:
		return c.lookup(ctx, true)
	case OpProperties:
		out := make(map[string]any, len(ctx.Properties))
		for k, v := range ctx.Properties {
			out[k] = normalize(v)
		}
		return out, nil
	case OpFeatureState:
		// tiles carry no feature state
		return nil, nil
	case OpGeometryType:
		return ctx.GeometryType, nil
	case OpID:
		return normalize(ctx.ID), nil
	case OpZoom:
		return ctx.Zoom, nil

	case OpAll:
		for _, a := range c.args {
			b, err := evalBool(a, ctx)
			if err != nil || !b {
				return false, err
			}
		}
		return true, nil
	case OpAny:
		for _, a := range c.args {
			b, err := evalBool(a, ctx)
			if err != nil {
				return false, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		b, err := evalBool(c.args[0], ctx)
		return !b, err
	case OpEqual, OpNotEqual:
		lhs, rhs, err := c.pair(ctx)
		if err != nil {
			return nil, err
		}
		eq := equal(lhs, rhs)
		if c.op == OpNotEqual {
			return !eq, nil
		}
		return eq, nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		lhs, rhs, err := c.pair(ctx)
		if err != nil {
			return nil, err
		}
		return compare(c.op, lhs, rhs)
	case OpCase:
		for i := 0; i < len(c.args)-1; i += 2 {
			b, err := evalBool(c.args[i], ctx)
			if err != nil {
				return nil, err
			}
			if b {
				return c.args[i+1].Eval(ctx)
			}
		}
		return c.args[len(c.args)-1].Eval(ctx)
	case OpCoalesce:
		for _, a := range c.args {
			v, err := a.Eval(ctx)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil

	case OpAt:
		idx, err := evalNumber(c.args[0], ctx)
		if err != nil {
			return nil, err
		}
		arr, err := evalArray(c.args[1], ctx)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(arr) || idx != math.Trunc(idx) {
			return nil, errors.Errorf("Array index out of bounds: %s > %d.", formatNumber(idx), len(arr)-1)
		}
		return normalize(arr[int(idx)]), nil
	case OpIn:
		return c.in(ctx)
	case OpIndexOf:
		return c.indexOf(ctx)
	case OpSlice:
		return c.slice(ctx)
	case OpLength:
		v, err := c.args[0].Eval(ctx)
		if err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case string:
			return float64(utf8.RuneCountInString(v)), nil
		case []any:
			return float64(len(v)), nil
		default:
			return nil, errors.Errorf("Expected value to be of type string or array, but found %s instead.", typeName(v))
		}

	case OpBoolean, OpNumber, OpString, OpObject:
		return c.assert(ctx)
	case OpTypeOf:
		v, err := c.args[0].Eval(ctx)
		if err != nil {
			return nil, err
		}
		return typeName(v), nil
	case OpToBoolean:
		v, err := c.args[0].Eval(ctx)
		if err != nil {
			return nil, err
		}
		return truthy(v), nil
	case OpToNumber:
		return c.toNumber(ctx)
	case OpToString:
		v, err := c.args[0].Eval(ctx)
		if err != nil {
			return nil, err
		}
		return stringify(v), nil

	case OpConcat:
		var sb strings.Builder
		for _, a := range c.args {
			v, err := a.Eval(ctx)
			if err != nil {
				return nil, err
			}
			sb.WriteString(stringify(v))
		}
		return sb.String(), nil
	case OpUpcase, OpDowncase:
		s, err := evalString(c.args[0], ctx)
		if err != nil {
			return nil, err
		}
		if c.op == OpUpcase {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	}
	return c.math(ctx)
}

func (c call) lookup(ctx *Context, presence bool) (any, error) {
	key, err := evalString(c.args[0], ctx)
	if err != nil {
		return nil, err
	}
	props := ctx.Properties
	if len(c.args) == 2 {
		obj, err := c.args[1].Eval(ctx)
		if err != nil {
			return nil, err
		}
		m, ok := obj.(map[string]any)
		if !ok {
			return nil, errors.Errorf("Expected value to be of type object, but found %s instead.", typeName(obj))
		}
		props = m
	}
	v, ok := props[key]
	if presence {
		return ok, nil
	}
	return normalize(v), nil
}

func (c call) pair(ctx *Context) (any, any, error) {
	lhs, err := c.args[0].Eval(ctx)
	if err != nil {
		return nil, nil, err
	}
	rhs, err := c.args[1].Eval(ctx)
	if err != nil {
		return nil, nil, err
	}
	return normalize(lhs), normalize(rhs), nil
}

func compare(op Op, lhs, rhs any) (any, error) {
	var cmp int
	switch l := lhs.(type) {
	case float64:
		r, ok := rhs.(float64)
		if !ok {
			return nil, errors.Errorf("Expected arguments for %q to be (string, string) or (number, number), but found (number, %s) instead.", op, typeName(rhs))
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	case string:
		r, ok := rhs.(string)
		if !ok {
			return nil, errors.Errorf("Expected arguments for %q to be (string, string) or (number, number), but found (string, %s) instead.", op, typeName(rhs))
		}
		cmp = strings.Compare(l, r)
	default:
		return nil, errors.Errorf("Expected arguments for %q to be (string, string) or (number, number), but found (%s, %s) instead.", op, typeName(lhs), typeName(rhs))
	}
	switch op {
	case OpLess:
		return cmp < 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	case OpGreater:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (c call) in(ctx *Context) (any, error) {
	needle, err := c.args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	haystack, err := c.args[1].Eval(ctx)
	if err != nil {
		return nil, err
	}
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(h, s), nil
	case []any:
		for _, v := range h {
			if equal(needle, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, errors.Errorf("Expected second argument to be of type array or string, but found %s instead.", typeName(haystack))
	}
}

func (c call) indexOf(ctx *Context) (any, error) {
	needle, err := c.args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	haystack, err := c.args[1].Eval(ctx)
	if err != nil {
		return nil, err
	}
	from := 0
	if len(c.args) == 3 {
		f, err := evalNumber(c.args[2], ctx)
		if err != nil {
			return nil, err
		}
		from = int(f)
	}
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return float64(-1), nil
		}
		runes := []rune(h)
		if from < 0 {
			from = 0
		}
		if from > len(runes) {
			return float64(-1), nil
		}
		idx := strings.Index(string(runes[from:]), s)
		if idx < 0 {
			return float64(-1), nil
		}
		return float64(from + utf8.RuneCountInString(string(runes[from:])[:idx])), nil
	case []any:
		for i := max(from, 0); i < len(h); i++ {
			if equal(needle, h[i]) {
				return float64(i), nil
			}
		}
		return float64(-1), nil
	default:
		return nil, errors.Errorf("Expected second argument to be of type array or string, but found %s instead.", typeName(haystack))
	}
}

func (c call) slice(ctx *Context) (any, error) {
	v, err := c.args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	start, err := evalNumber(c.args[1], ctx)
	if err != nil {
		return nil, err
	}
	end := math.Inf(1)
	if len(c.args) == 3 {
		if end, err = evalNumber(c.args[2], ctx); err != nil {
			return nil, err
		}
	}
	bounds := func(n int) (int, int) {
		s, e := int(start), n
		if !math.IsInf(end, 1) {
			e = int(end)
		}
		if s < 0 {
			s += n
		}
		if e < 0 {
			e += n
		}
		s = min(max(s, 0), n)
		e = min(max(e, s), n)
		return s, e
	}
	switch v := v.(type) {
	case string:
		runes := []rune(v)
		s, e := bounds(len(runes))
		return string(runes[s:e]), nil
	case []any:
		s, e := bounds(len(v))
		return append([]any(nil), v[s:e]...), nil
	default:
		return nil, errors.Errorf("Expected first argument to be of type array or string, but found %s instead.", typeName(v))
	}
}

func (c call) assert(ctx *Context) (any, error) {
	want := map[Op]string{
		OpBoolean: "boolean",
		OpNumber:  "number",
		OpString:  "string",
		OpObject:  "object",
	}[c.op]
	var last any
	for _, a := range c.args {
		v, err := a.Eval(ctx)
		if err != nil {
			return nil, err
		}
		v = normalize(v)
		if typeName(v) == want {
			return v, nil
		}
		last = v
	}
	return nil, errors.Errorf("Expected value to be of type %s, but found %s instead.", want, typeName(last))
}

func (c call) toNumber(ctx *Context) (any, error) {
	var last any
	for _, a := range c.args {
		v, err := a.Eval(ctx)
		if err != nil {
			return nil, err
		}
		switch v := normalize(v).(type) {
		case nil:
			return float64(0), nil
		case bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		case float64:
			return v, nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
		}
		last = v
	}
	return nil, errors.Errorf("Could not convert %s to number.", stringify(last))
}

func (c call) math(ctx *Context) (any, error) {
	switch c.op {
	case OpLn2:
		return math.Ln2, nil
	case OpPi:
		return math.Pi, nil
	case OpE:
		return math.E, nil
	}

	nums := make([]float64, len(c.args))
	for i, a := range c.args {
		n, err := evalNumber(a, ctx)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}

	switch c.op {
	case OpAdd:
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum, nil
	case OpMultiply:
		product := 1.0
		for _, n := range nums {
			product *= n
		}
		return product, nil
	case OpSubtract:
		if len(nums) == 1 {
			return -nums[0], nil
		}
		return nums[0] - nums[1], nil
	case OpDivide:
		return nums[0] / nums[1], nil
	case OpMod:
		return math.Mod(nums[0], nums[1]), nil
	case OpPow:
		return math.Pow(nums[0], nums[1]), nil
	case OpMin:
		out := nums[0]
		for _, n := range nums[1:] {
			out = math.Min(out, n)
		}
		return out, nil
	case OpMax:
		out := nums[0]
		for _, n := range nums[1:] {
			out = math.Max(out, n)
		}
		return out, nil
	case OpSqrt:
		return math.Sqrt(nums[0]), nil
	case OpLog10:
		return math.Log10(nums[0]), nil
	case OpLn:
		return math.Log(nums[0]), nil
	case OpLog2:
		return math.Log2(nums[0]), nil
	case OpSin:
		return math.Sin(nums[0]), nil
	case OpCos:
		return math.Cos(nums[0]), nil
	case OpTan:
		return math.Tan(nums[0]), nil
	case OpAsin:
		return math.Asin(nums[0]), nil
	case OpAcos:
		return math.Acos(nums[0]), nil
	case OpAtan:
		return math.Atan(nums[0]), nil
	case OpRound:
		// halfway values round away from zero
		return math.Round(nums[0]), nil
	case OpAbs:
		return math.Abs(nums[0]), nil
	case OpCeil:
		return math.Ceil(nums[0]), nil
	case OpFloor:
		return math.Floor(nums[0]), nil
	}
	return nil, errors.WithMessage(ErrUnsupported, c.op.String())
}

func evalBool(e Expr, ctx *Context) (bool, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("Expected value to be of type boolean, but found %s instead.", typeName(v))
	}
	return b, nil
}

func evalNumber(e Expr, ctx *Context) (float64, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := Number(v)
	if !ok {
		return 0, errors.Errorf("Expected value to be of type number, but found %s instead.", typeName(v))
	}
	return n, nil
}

func evalString(e Expr, ctx *Context) (string, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("Expected value to be of type string, but found %s instead.", typeName(v))
	}
	return s, nil
}

func evalArray(e Expr, ctx *Context) ([]any, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, errors.Errorf("Expected value to be of type array, but found %s instead.", typeName(v))
	}
	return arr, nil
}
