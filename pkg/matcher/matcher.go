// Package matcher evaluates structural filter specifications against raw JSON
// records. The pipeline treats matching as an opaque boolean capability; this
// package is the engine-side implementation backing storage.DocumentMatcher.
//
// A filter is a field-keyed map. Values are compared for equality unless they
// are operator objects ($eq, $ne, $gt, $gte, $lt, $lte, $in, $exists). The
// $and and $or keys group sub-filters.
package matcher

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/driftdb/driftdb/pkg/storage"
)

// Matcher is a compiled filter. The zero filter matches every record.
type Matcher struct {
	filter storage.Filter
}

var _ storage.DocumentMatcher = (*Matcher)(nil)

// Compile validates the filter's structure and returns a matcher for it.
func Compile(filter storage.Filter) (*Matcher, error) {
	if err := validate(filter); err != nil {
		return nil, err
	}
	return &Matcher{filter: filter}, nil
}

func validate(filter storage.Filter) error {
	for key, value := range filter {
		switch key {
		case "$and", "$or":
			clauses, ok := anySlice(value)
			if !ok {
				return fmt.Errorf("matcher: %s requires an array of filters", key)
			}
			for _, clause := range clauses {
				sub, ok := asFilter(clause)
				if !ok {
					return fmt.Errorf("matcher: %s clauses must be objects", key)
				}
				if err := validate(sub); err != nil {
					return err
				}
			}
		default:
			if strings.HasPrefix(key, "$") {
				return fmt.Errorf("matcher: unknown top-level operator %q", key)
			}
			if ops, ok := operatorObject(value); ok {
				for op := range ops {
					switch op {
					case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$in", "$exists":
					default:
						return fmt.Errorf("matcher: unknown operator %q on field %q", op, key)
					}
				}
			}
		}
	}
	return nil
}

// Matches evaluates the filter against one raw JSON record.
func (m *Matcher) Matches(data []byte) (bool, error) {
	return matches(m.filter, data)
}

func matches(filter storage.Filter, data []byte) (bool, error) {
	for key, value := range filter {
		switch key {
		case "$and":
			clauses, _ := anySlice(value)
			for _, clause := range clauses {
				sub, _ := asFilter(clause)
				ok, err := matches(sub, data)
				if err != nil || !ok {
					return false, err
				}
			}
		case "$or":
			clauses, _ := anySlice(value)
			anyMatched := false
			for _, clause := range clauses {
				sub, _ := asFilter(clause)
				ok, err := matches(sub, data)
				if err != nil {
					return false, err
				}
				if ok {
					anyMatched = true
					break
				}
			}
			if !anyMatched {
				return false, nil
			}
		default:
			ok, err := matchField(gjson.GetBytes(data, key), value)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func matchField(got gjson.Result, want any) (bool, error) {
	ops, isOps := operatorObject(want)
	if !isOps {
		return equal(got, want), nil
	}

	for op, operand := range ops {
		switch op {
		case "$eq":
			if !equal(got, operand) {
				return false, nil
			}
		case "$ne":
			if equal(got, operand) {
				return false, nil
			}
		case "$exists":
			wantExists, _ := operand.(bool)
			if got.Exists() != wantExists {
				return false, nil
			}
		case "$in":
			candidates, ok := anySlice(operand)
			if !ok {
				return false, fmt.Errorf("matcher: $in requires an array")
			}
			found := false
			for _, candidate := range candidates {
				if equal(got, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			cmp, comparable := compare(got, operand)
			if !comparable {
				return false, nil
			}
			switch op {
			case "$gt":
				if cmp <= 0 {
					return false, nil
				}
			case "$gte":
				if cmp < 0 {
					return false, nil
				}
			case "$lt":
				if cmp >= 0 {
					return false, nil
				}
			case "$lte":
				if cmp > 0 {
					return false, nil
				}
			}
		default:
			return false, fmt.Errorf("matcher: unknown operator %q", op)
		}
	}
	return true, nil
}

func equal(got gjson.Result, want any) bool {
	if !got.Exists() {
		return want == nil && got.Type == gjson.Null
	}
	if f, ok := toFloat(want); ok {
		return got.Type == gjson.Number && got.Num == f
	}
	switch w := want.(type) {
	case string:
		return got.Type == gjson.String && got.Str == w
	case bool:
		return got.IsBool() && got.Bool() == w
	case nil:
		return got.Type == gjson.Null
	default:
		return reflect.DeepEqual(got.Value(), want)
	}
}

// compare orders got against want; the second return is false when the two
// are not comparable (mixed or unsupported types).
func compare(got gjson.Result, want any) (int, bool) {
	if f, ok := toFloat(want); ok && got.Type == gjson.Number {
		switch {
		case got.Num < f:
			return -1, true
		case got.Num > f:
			return 1, true
		default:
			return 0, true
		}
	}
	if s, ok := want.(string); ok && got.Type == gjson.String {
		return strings.Compare(got.Str, s), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
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

func anySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []storage.Filter:
		out := make([]any, len(s))
		for i, f := range s {
			out[i] = f
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, f := range s {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func asFilter(v any) (storage.Filter, bool) {
	switch f := v.(type) {
	case storage.Filter:
		return f, true
	case map[string]any:
		return f, true
	default:
		return nil, false
	}
}

// operatorObject reports whether the value is an operator object: a map whose
// keys all start with '$'. A plain nested map is an equality comparison.
func operatorObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}
