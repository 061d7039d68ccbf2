package expression

// ReplaceCameraExpressions rewrites the parts of filter that depend on the
// camera (pitch, distance-from-center) into ["literal", true]. A tile has no
// camera, so such predicates must keep whatever they might select.
//
// Branches of all/any are rewritten independently. Any other sub-tree that
// mentions a camera operator is replaced as a whole. The input is not
// modified.
func ReplaceCameraExpressions(filter any) any {
	arr, ok := filter.([]any)
	if !ok || len(arr) == 0 {
		return filter
	}
	op, _, _ := Head(arr)
	if op == OpAll || op == OpAny {
		out := make([]any, len(arr))
		out[0] = arr[0]
		for i, branch := range arr[1:] {
			out[i+1] = ReplaceCameraExpressions(branch)
		}
		return out
	}
	if usesCamera(arr) {
		return []any{"literal", true}
	}
	return filter
}

func usesCamera(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	op, _, _ := Head(arr)
	switch op {
	case OpPitch, OpDistanceFromCenter:
		return true
	case OpLiteral:
		return false
	}
	for _, child := range arr {
		if usesCamera(child) {
			return true
		}
	}
	return false
}
