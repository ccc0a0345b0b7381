package storage

import (
	"fmt"
	"strings"
)

// CompareValues orders two document field values, as used by in-pipeline
// sorting and by ordered indexes. Values of different kinds order by kind
// bracket: null (or missing) < bool < number < string < other. "Other" values
// (arrays, objects) compare by their rendered form, which is stable if
// arbitrary.
func CompareValues(a, b any) int {
	ka, kb := valueKind(a), valueKind(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case kindNull:
		return 0
	case kindBool:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case kindNumber:
		av, _ := AsFloat(a)
		bv, _ := AsFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case kindString:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

const (
	kindNull = iota
	kindBool
	kindNumber
	kindString
	kindOther
)

func valueKind(v any) int {
	if v == nil {
		return kindNull
	}
	switch v.(type) {
	case bool:
		return kindBool
	case int, int32, int64, float32, float64:
		return kindNumber
	case string:
		return kindString
	default:
		return kindOther
	}
}

// AsFloat widens any numeric value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
