package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

func TestFromBytes(t *testing.T) {
	t.Run("copies_the_input", func(t *testing.T) {
		raw := []byte(`{"a":1}`)
		doc, err := FromBytes(raw)
		require.NoError(t, err)

		raw[2] = 'x'
		v, ok := doc.Get("a")
		require.True(t, ok)
		require.Equal(t, float64(1), v)
	})

	t.Run("rejects_invalid_json", func(t *testing.T) {
		_, err := FromBytes([]byte(`{"a":`))
		require.Error(t, err)
	})
}

func TestField(t *testing.T) {
	doc, err := FromMap(map[string]any{
		"a": map[string]any{"b": "deep"},
		"n": 42,
	})
	require.NoError(t, err)

	v, ok := doc.Field(fieldpath.MustNew("a.b"))
	require.True(t, ok)
	require.Equal(t, "deep", v)

	_, ok = doc.Field(fieldpath.MustNew("a.c"))
	require.False(t, ok)

	v, ok = doc.Get("n")
	require.True(t, ok)
	require.Equal(t, float64(42), v)
}

func TestProject(t *testing.T) {
	doc, err := FromMap(map[string]any{
		"a":    map[string]any{"b": 1, "c": 2},
		"keep": "yes",
		"drop": "no",
	})
	require.NoError(t, err)

	projected, err := doc.Project([]fieldpath.FieldPath{
		fieldpath.MustNew("a.b"),
		fieldpath.MustNew("keep"),
		fieldpath.MustNew("missing"),
	})
	require.NoError(t, err)

	fields, err := projected.Map()
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"a":    map[string]any{"b": float64(1)},
		"keep": "yes",
	}, fields)

	// the source snapshot is untouched
	_, ok := doc.Get("drop")
	require.True(t, ok)
}
