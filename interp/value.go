package interp

import (
	"fmt"

	"github.com/atlas-lang/atlas/vm"
)

// ConversionError reports that a vm.Value could not be converted to the
// requested host type.
type ConversionError struct {
	Want string
	Got  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("interp: cannot convert %s to %s", e.Got, e.Want)
}

// ToAtlas converts a host Go value into a vm.Value. Supported inputs are
// the scalar kinds, string, []interface{} (recursively converted to an
// Atlas array), and *bool, *string and *float64 (nil pointer -> Atlas
// null, matching Option's None case); pointers to other types are not
// accepted.
func ToAtlas(v interface{}) (vm.Value, error) {
	switch x := v.(type) {
	case nil:
		return vm.Null, nil
	case vm.Value:
		return x, nil
	case bool:
		return vm.Bool(x), nil
	case string:
		return vm.String(x), nil
	case float64:
		return vm.Number(x), nil
	case float32:
		return vm.Number(float64(x)), nil
	case int:
		return vm.Number(float64(x)), nil
	case int32:
		return vm.Number(float64(x)), nil
	case int64:
		return vm.Number(float64(x)), nil
	case *bool:
		if x == nil {
			return vm.Null, nil
		}
		return vm.Bool(*x), nil
	case *string:
		if x == nil {
			return vm.Null, nil
		}
		return vm.String(*x), nil
	case *float64:
		if x == nil {
			return vm.Null, nil
		}
		return vm.Number(*x), nil
	case []interface{}:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			ev, err := ToAtlas(e)
			if err != nil {
				return vm.Value{}, err
			}
			elems[i] = ev
		}
		return vm.Value{Kind: vm.KindArray, Array: vm.NewArray(elems)}, nil
	default:
		return vm.Value{}, &ConversionError{Want: "atlas value", Got: fmt.Sprintf("%T", v)}
	}
}

// FromAtlasBool converts a Bool value to bool.
func FromAtlasBool(v vm.Value) (bool, error) {
	if v.Kind != vm.KindBool {
		return false, &ConversionError{Want: "bool", Got: kindLabel(v)}
	}
	return v.Bool, nil
}

// FromAtlasNumber converts a Number value to float64.
func FromAtlasNumber(v vm.Value) (float64, error) {
	if v.Kind != vm.KindNumber {
		return 0, &ConversionError{Want: "number", Got: kindLabel(v)}
	}
	return v.Number, nil
}

// FromAtlasString converts a String value to string.
func FromAtlasString(v vm.Value) (string, error) {
	if v.Kind != vm.KindString {
		return "", &ConversionError{Want: "string", Got: kindLabel(v)}
	}
	return v.Str, nil
}

// FromAtlasArray converts an Array value to a []interface{} of FromAtlas'd
// elements, each resolved to its most natural Go type (bool/float64/
// string/[]interface{}/nil).
func FromAtlasArray(v vm.Value) ([]interface{}, error) {
	if v.Kind != vm.KindArray {
		return nil, &ConversionError{Want: "array", Got: kindLabel(v)}
	}
	out := make([]interface{}, v.Array.Len())
	for i := 0; i < v.Array.Len(); i++ {
		elem, err := FromAtlasAny(v.Array.At(i))
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

// FromAtlasOption converts a null value to (nil, false) and any other
// value to (FromAtlasAny(v), true), matching Option<T>'s None/Some shape.
func FromAtlasOption(v vm.Value) (interface{}, bool, error) {
	if v.Kind == vm.KindNull {
		return nil, false, nil
	}
	inner, err := FromAtlasAny(v)
	return inner, true, err
}

// FromAtlasAny converts v to its most natural Go representation without
// requiring the caller to know v's kind ahead of time.
func FromAtlasAny(v vm.Value) (interface{}, error) {
	switch v.Kind {
	case vm.KindNull:
		return nil, nil
	case vm.KindBool:
		return v.Bool, nil
	case vm.KindNumber:
		return v.Number, nil
	case vm.KindString:
		return v.Str, nil
	case vm.KindArray:
		return FromAtlasArray(v)
	default:
		return nil, &ConversionError{Want: "scalar, string, or array", Got: kindLabel(v)}
	}
}

func kindLabel(v vm.Value) string {
	switch v.Kind {
	case vm.KindNull:
		return "null"
	case vm.KindNumber:
		return "number"
	case vm.KindString:
		return "string"
	case vm.KindBool:
		return "bool"
	case vm.KindArray:
		return "array"
	case vm.KindRecord:
		return "record"
	case vm.KindFunction:
		return "function"
	case vm.KindNative:
		return "native"
	case vm.KindExtern:
		return "extern"
	default:
		return "unknown"
	}
}
