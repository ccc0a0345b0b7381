package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/driftdb/pkg/fieldpath"
	"github.com/driftdb/driftdb/pkg/storage"
)

func TestSortStage(t *testing.T) {
	ctx := context.Background()

	src := NewDocuments(
		mustDoc(t, map[string]any{"a": 3, "b": "x"}),
		mustDoc(t, map[string]any{"a": 1, "b": "z"}),
		mustDoc(t, map[string]any{"a": 2, "b": "y"}),
		mustDoc(t, map[string]any{"b": "missing a"}),
	)

	t.Run("ascending_with_missing_first", func(t *testing.T) {
		stage := NewSort(storage.SortKey{{Path: fieldpath.MustNew("a")}})
		stage.SetSource(src)

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 4)

		_, ok := out[0].Get("a")
		require.False(t, ok)
		for i, want := range []float64{1, 2, 3} {
			got, _ := out[i+1].Get("a")
			require.Equal(t, want, got)
		}
	})

	t.Run("descending", func(t *testing.T) {
		stage := NewSort(storage.SortKey{{Path: fieldpath.MustNew("a"), Descending: true}})
		stage.SetSource(NewDocuments(
			mustDoc(t, map[string]any{"a": 1}),
			mustDoc(t, map[string]any{"a": 3}),
			mustDoc(t, map[string]any{"a": 2}),
		))

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		for i, want := range []float64{3, 2, 1} {
			got, _ := out[i].Get("a")
			require.Equal(t, want, got)
		}
	})

	t.Run("adds_key_dependencies_without_closing", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$sort"})
		stage := NewSort(storage.SortKey{
			{Path: fieldpath.MustNew("a")},
			{Path: fieldpath.MustNew("b.c"), Descending: true},
		})
		require.NoError(t, stage.AnalyzeDependencies(0, tracker))
		require.False(t, tracker.IsClosed())

		_, ok := tracker.GetDependency(fieldpath.MustNew("a"))
		require.True(t, ok)
		_, ok = tracker.GetDependency(fieldpath.MustNew("b.c"))
		require.True(t, ok)
	})
}

func TestProjectStage(t *testing.T) {
	ctx := context.Background()

	t.Run("projects_and_closes_dependency_set", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$project", "$sort"})
		stage := NewProject(fieldpath.MustNew("a"), fieldpath.MustNew("b.c"))

		// a later stage depends on a field this projection includes
		tracker.AddDependency(fieldpath.MustNew("a"), 1)
		require.NoError(t, stage.AnalyzeDependencies(0, tracker))
		require.True(t, tracker.IsClosed())

		fields, err := tracker.FieldSet()
		require.NoError(t, err)
		require.Len(t, fields, 2)
	})

	t.Run("reports_a_dependency_it_cannot_produce", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$project", "$group"})
		stage := NewProject(fieldpath.MustNew("a"))

		tracker.AddDependency(fieldpath.MustNew("other"), 1)
		err := stage.AnalyzeDependencies(0, tracker)

		var unsat *UnsatisfiedDependencyError
		require.ErrorAs(t, err, &unsat)
		require.Equal(t, "other", unsat.Path.String())
		require.Equal(t, "$group", unsat.NeedingStage)
		require.Equal(t, "$project", unsat.ExcludingStage)
	})

	t.Run("execution_keeps_only_included_fields", func(t *testing.T) {
		stage := NewProject(fieldpath.MustNew("keep"))
		stage.SetSource(NewDocuments(mustDoc(t, map[string]any{"keep": 1, "drop": 2})))

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 1)
		_, ok := out[0].Get("keep")
		require.True(t, ok)
		_, ok = out[0].Get("drop")
		require.False(t, ok)
	})
}

func TestGroupStage(t *testing.T) {
	ctx := context.Background()

	t.Run("groups_and_accumulates", func(t *testing.T) {
		stage := NewGroup(fieldpath.MustNew("city"),
			Accumulator{Field: "total", Op: "$sum", Source: fieldpath.MustNew("amount")},
			Accumulator{Field: "n", Op: "$count"},
			Accumulator{Field: "best", Op: "$max", Source: fieldpath.MustNew("amount")},
		)
		stage.SetSource(NewDocuments(
			mustDoc(t, map[string]any{"city": "nyc", "amount": 10}),
			mustDoc(t, map[string]any{"city": "sf", "amount": 7}),
			mustDoc(t, map[string]any{"city": "nyc", "amount": 5}),
		))

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 2)

		// groups surface in first-seen order
		id, _ := out[0].Get("_id")
		require.Equal(t, "nyc", id)
		total, _ := out[0].Get("total")
		require.Equal(t, float64(15), total)
		n, _ := out[0].Get("n")
		require.Equal(t, float64(2), n)
		best, _ := out[0].Get("best")
		require.Equal(t, float64(10), best)

		id, _ = out[1].Get("_id")
		require.Equal(t, "sf", id)
	})

	t.Run("single_group_over_all_input", func(t *testing.T) {
		stage := NewGroupAll(Accumulator{Field: "n", Op: "$count"})
		stage.SetSource(NewDocuments(
			mustDoc(t, map[string]any{"a": 1}),
			mustDoc(t, map[string]any{"a": 2}),
		))

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 1)
		n, _ := out[0].Get("n")
		require.Equal(t, float64(2), n)
	})

	t.Run("closes_dependency_set_and_checks_products", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$group", "$sort"})
		stage := NewGroup(fieldpath.MustNew("city"),
			Accumulator{Field: "total", Op: "$sum", Source: fieldpath.MustNew("amount")},
		)

		// later stage depends on the group's output
		tracker.AddDependency(fieldpath.MustNew("total"), 1)
		require.NoError(t, stage.AnalyzeDependencies(0, tracker))
		require.True(t, tracker.IsClosed())

		fields, err := tracker.FieldSet()
		require.NoError(t, err)
		require.Len(t, fields, 2) // city + amount
		require.Equal(t, "amount", fields[0].String())
		require.Equal(t, "city", fields[1].String())
	})

	t.Run("rejects_a_dependency_it_cannot_produce", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$group", "$sort"})
		stage := NewGroupAll(Accumulator{Field: "n", Op: "$count"})

		tracker.AddDependency(fieldpath.MustNew("raw"), 1)
		err := stage.AnalyzeDependencies(0, tracker)

		var unsat *UnsatisfiedDependencyError
		require.ErrorAs(t, err, &unsat)
		require.Equal(t, "raw", unsat.Path.String())
	})
}

func TestLimitAndSkip(t *testing.T) {
	ctx := context.Background()

	docs := []map[string]any{
		{"i": 0}, {"i": 1}, {"i": 2}, {"i": 3}, {"i": 4},
	}
	source := func() Stage {
		return NewDocuments(
			mustDoc(t, docs[0]), mustDoc(t, docs[1]), mustDoc(t, docs[2]),
			mustDoc(t, docs[3]), mustDoc(t, docs[4]),
		)
	}

	t.Run("limit", func(t *testing.T) {
		stage := NewLimit(2)
		stage.SetSource(source())

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 2)
	})

	t.Run("skip", func(t *testing.T) {
		stage := NewSkip(3)
		stage.SetSource(source())

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Len(t, out, 2)
		i, _ := out[0].Get("i")
		require.Equal(t, float64(3), i)
	})

	t.Run("skip_past_the_end", func(t *testing.T) {
		stage := NewSkip(10)
		stage.SetSource(source())

		out, err := Drain(ctx, stage)
		require.NoError(t, err)
		require.Empty(t, out)
	})

	t.Run("transparent_to_dependency_analysis", func(t *testing.T) {
		tracker := NewDependencyTracker([]string{"$limit"})
		require.NoError(t, NewLimit(1).AnalyzeDependencies(0, tracker))
		require.NoError(t, NewSkip(1).AnalyzeDependencies(0, tracker))
		require.False(t, tracker.IsClosed())
	})
}
