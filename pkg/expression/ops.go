package expression

// Op identifies a style expression operator.
type Op uint8

const (
	OpUnknown Op = iota

	// lookup
	OpGet
	OpHas
	OpProperties
	OpFeatureState
	OpGeometryType
	OpID
	OpAt
	OpIn
	OpIndexOf
	OpSlice
	OpLength

	// decision
	OpAll
	OpAny
	OpNot
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpCase
	OpMatch
	OpCoalesce
	OpWithin
	OpDistance

	// types
	OpLiteral
	OpArray
	OpBoolean
	OpNumber
	OpString
	OpObject
	OpTypeOf
	OpToBoolean
	OpToNumber
	OpToString
	OpToColor
	OpCollator
	OpFormat
	OpImage
	OpNumberFormat

	// variable binding
	OpLet
	OpVar

	// ramps, scales, curves
	OpStep
	OpInterpolate
	OpInterpolateHCL
	OpInterpolateLab

	// camera
	OpZoom
	OpPitch
	OpDistanceFromCenter

	// rendering only
	OpHeatmapDensity
	OpLineProgress
	OpSkyRadialProgress
	OpAccumulated
	OpMeasureLight
	OpRasterValue
	OpRasterParticleSpeed
	OpConfig
	OpRandom

	// math
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpMod
	OpPow
	OpSqrt
	OpLog10
	OpLn
	OpLog2
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpMin
	OpMax
	OpRound
	OpAbs
	OpCeil
	OpFloor
	OpLn2
	OpPi
	OpE

	// string
	OpConcat
	OpUpcase
	OpDowncase
	OpIsSupportedScript
	OpResolvedLocale

	// color
	OpRGB
	OpRGBA
	OpToRGBA
	OpHSL
	OpHSLA
)

var opNames = map[string]Op{
	"get":                   OpGet,
	"has":                   OpHas,
	"properties":            OpProperties,
	"feature-state":         OpFeatureState,
	"geometry-type":         OpGeometryType,
	"id":                    OpID,
	"at":                    OpAt,
	"in":                    OpIn,
	"index-of":              OpIndexOf,
	"slice":                 OpSlice,
	"length":                OpLength,
	"all":                   OpAll,
	"any":                   OpAny,
	"!":                     OpNot,
	"==":                    OpEqual,
	"!=":                    OpNotEqual,
	"<":                     OpLess,
	"<=":                    OpLessEqual,
	">":                     OpGreater,
	">=":                    OpGreaterEqual,
	"case":                  OpCase,
	"match":                 OpMatch,
	"coalesce":              OpCoalesce,
	"within":                OpWithin,
	"distance":              OpDistance,
	"literal":               OpLiteral,
	"array":                 OpArray,
	"boolean":               OpBoolean,
	"number":                OpNumber,
	"string":                OpString,
	"object":                OpObject,
	"typeof":                OpTypeOf,
	"to-boolean":            OpToBoolean,
	"to-number":             OpToNumber,
	"to-string":             OpToString,
	"to-color":              OpToColor,
	"collator":              OpCollator,
	"format":                OpFormat,
	"image":                 OpImage,
	"number-format":         OpNumberFormat,
	"let":                   OpLet,
	"var":                   OpVar,
	"step":                  OpStep,
	"interpolate":           OpInterpolate,
	"interpolate-hcl":       OpInterpolateHCL,
	"interpolate-lab":       OpInterpolateLab,
	"zoom":                  OpZoom,
	"pitch":                 OpPitch,
	"distance-from-center":  OpDistanceFromCenter,
	"heatmap-density":       OpHeatmapDensity,
	"line-progress":         OpLineProgress,
	"sky-radial-progress":   OpSkyRadialProgress,
	"accumulated":           OpAccumulated,
	"measure-light":         OpMeasureLight,
	"raster-value":          OpRasterValue,
	"raster-particle-speed": OpRasterParticleSpeed,
	"config":                OpConfig,
	"random":                OpRandom,
	"+":                     OpAdd,
	"-":                     OpSubtract,
	"*":                     OpMultiply,
	"/":                     OpDivide,
	"%":                     OpMod,
	"^":                     OpPow,
	"sqrt":                  OpSqrt,
	"log10":                 OpLog10,
	"ln":                    OpLn,
	"log2":                  OpLog2,
	"sin":                   OpSin,
	"cos":                   OpCos,
	"tan":                   OpTan,
	"asin":                  OpAsin,
	"acos":                  OpAcos,
	"atan":                  OpAtan,
	"min":                   OpMin,
	"max":                   OpMax,
	"round":                 OpRound,
	"abs":                   OpAbs,
	"ceil":                  OpCeil,
	"floor":                 OpFloor,
	"ln2":                   OpLn2,
	"pi":                    OpPi,
	"e":                     OpE,
	"concat":                OpConcat,
	"upcase":                OpUpcase,
	"downcase":              OpDowncase,
	"is-supported-script":   OpIsSupportedScript,
	"resolved-locale":       OpResolvedLocale,
	"rgb":                   OpRGB,
	"rgba":                  OpRGBA,
	"to-rgba":               OpToRGBA,
	"hsl":                   OpHSL,
	"hsla":                  OpHSLA,
}

var opStrings = func() map[Op]string {
	out := make(map[Op]string, len(opNames))
	for name, op := range opNames {
		out[op] = name
	}
	return out
}()

// LookupOp returns the operator named name, or OpUnknown.
func LookupOp(name string) Op {
	return opNames[name]
}

func (op Op) String() string {
	if s, ok := opStrings[op]; ok {
		return s
	}
	return "unknown"
}

// Head returns the operator at the head of v when v is an array starting
// with a string. The second return is false for anything else.
func Head(v any) (Op, string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return OpUnknown, "", false
	}
	name, ok := arr[0].(string)
	if !ok {
		return OpUnknown, "", false
	}
	return LookupOp(name), name, true
}

// IsExpression reports whether v is an array whose head is a known
// expression operator.
func IsExpression(v any) bool {
	op, _, ok := Head(v)
	return ok && op != OpUnknown
}
