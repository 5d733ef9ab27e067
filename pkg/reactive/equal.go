package reactive

import (
	"math"
	"reflect"
)

// Same reports whether a write of b over a can be skipped. Primitives
// compare by value (NaN equals NaN), pointers and observable containers by
// identity. Any other composite value is always considered changed.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok && sameKind(a, b) {
			return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

// IsPrimitive reports whether v is nil, a boolean, a number or a string.
func IsPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, string:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func sameKind(a, b any) bool {
	return reflect.TypeOf(a).Kind() == reflect.TypeOf(b).Kind()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
