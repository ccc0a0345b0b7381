package docgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Run("passes_plain_values_through", func(t *testing.T) {
		e := New(1)
		doc, err := e.Evaluate(map[string]any{
			"name":   "alice",
			"age":    30.0,
			"active": true,
		})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"name": "alice", "age": 30.0, "active": true}, doc)
	})

	t.Run("rand_int_stays_in_bounds", func(t *testing.T) {
		e := New(1)
		for i := 0; i < 100; i++ {
			doc, err := e.Evaluate(map[string]any{
				"age": map[string]any{"#RAND_INT": []any{18.0, 65.0}},
			})
			require.NoError(t, err)
			age := doc["age"].(float64)
			require.GreaterOrEqual(t, age, 18.0)
			require.Less(t, age, 65.0)
		}
	})

	t.Run("rand_int_rejects_empty_range", func(t *testing.T) {
		e := New(1)
		_, err := e.Evaluate(map[string]any{
			"age": map[string]any{"#RAND_INT": []any{65.0, 18.0}},
		})
		require.Error(t, err)
	})

	t.Run("rand_string_has_requested_length", func(t *testing.T) {
		e := New(1)
		doc, err := e.Evaluate(map[string]any{
			"token": map[string]any{"#RAND_STRING": []any{12.0}},
		})
		require.NoError(t, err)
		require.Regexp(t, regexp.MustCompile(`^[a-zA-Z0-9]{12}$`), doc["token"])
	})

	t.Run("seq_int_advances_per_expansion", func(t *testing.T) {
		e := New(1)
		tpl := map[string]any{
			"n": map[string]any{"#SEQ_INT": map[string]any{"seq_id": "n", "start": 10.0, "step": 5.0}},
		}
		var got []float64
		for i := 0; i < 3; i++ {
			doc, err := e.Evaluate(tpl)
			require.NoError(t, err)
			got = append(got, doc["n"].(float64))
		}
		require.Equal(t, []float64{10, 15, 20}, got)
	})

	t.Run("seq_int_mod_wraps", func(t *testing.T) {
		e := New(1)
		tpl := map[string]any{
			"n": map[string]any{"#SEQ_INT": map[string]any{"seq_id": "n", "mod": 3.0}},
		}
		var got []float64
		for i := 0; i < 4; i++ {
			doc, err := e.Evaluate(tpl)
			require.NoError(t, err)
			got = append(got, doc["n"].(float64))
		}
		require.Equal(t, []float64{0, 1, 2, 0}, got)
	})

	t.Run("concat_joins_parts_and_nested_operators", func(t *testing.T) {
		e := New(1)
		doc, err := e.Evaluate(map[string]any{
			"id": map[string]any{"#CONCAT": []any{
				"user-",
				map[string]any{"#SEQ_INT": map[string]any{"seq_id": "u", "start": 7.0}},
			}},
		})
		require.NoError(t, err)
		require.Equal(t, "user-7", doc["id"])
	})

	t.Run("rand_normal_is_numeric", func(t *testing.T) {
		e := New(1)
		doc, err := e.Evaluate(map[string]any{
			"latency": map[string]any{"#RAND_NORMAL": []any{100.0, 15.0}},
		})
		require.NoError(t, err)
		require.IsType(t, float64(0), doc["latency"])
	})

	t.Run("recurses_into_subdocuments", func(t *testing.T) {
		e := New(1)
		doc, err := e.Evaluate(map[string]any{
			"meta": map[string]any{
				"version": 1.0,
				"token":   map[string]any{"#RAND_STRING": []any{4.0}},
			},
		})
		require.NoError(t, err)
		meta := doc["meta"].(map[string]any)
		require.Equal(t, 1.0, meta["version"])
		require.Len(t, meta["token"], 4)
	})

	t.Run("rejects_operator_in_field_name", func(t *testing.T) {
		e := New(1)
		_, err := e.Evaluate(map[string]any{
			"#RAND_INT": []any{1.0, 2.0},
		})
		require.Error(t, err)
	})

	t.Run("rejects_unknown_operator", func(t *testing.T) {
		e := New(1)
		_, err := e.Evaluate(map[string]any{
			"n": map[string]any{"#RAND_FLOAT": []any{1.0, 2.0}},
		})
		require.Error(t, err)
	})

	t.Run("deterministic_for_equal_seeds", func(t *testing.T) {
		tpl := map[string]any{
			"token": map[string]any{"#RAND_STRING": []any{16.0}},
		}
		a, err := New(42).Evaluate(tpl)
		require.NoError(t, err)
		b, err := New(42).Evaluate(tpl)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}
