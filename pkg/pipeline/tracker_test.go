package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

func TestDependencyTracker(t *testing.T) {
	names := []string{"$match", "$project", "$group"}

	t.Run("add_remove_get", func(t *testing.T) {
		tracker := NewDependencyTracker(names)
		a := fieldpath.MustNew("a")

		_, ok := tracker.GetDependency(a)
		require.False(t, ok)

		tracker.AddDependency(a, 2)
		stage, ok := tracker.GetDependency(a)
		require.True(t, ok)
		require.Equal(t, 2, stage)

		tracker.RemoveDependency(a)
		_, ok = tracker.GetDependency(a)
		require.False(t, ok)

		// removing an absent path is a no-op
		tracker.RemoveDependency(a)
	})

	t.Run("last_writer_wins_on_duplicate_add", func(t *testing.T) {
		tracker := NewDependencyTracker(names)
		a := fieldpath.MustNew("a.b")

		tracker.AddDependency(a, 2)
		tracker.AddDependency(a, 1)

		stage, ok := tracker.GetDependency(a)
		require.True(t, ok)
		require.Equal(t, 1, stage)
	})

	t.Run("field_set_requires_closed", func(t *testing.T) {
		tracker := NewDependencyTracker(names)
		tracker.AddDependency(fieldpath.MustNew("b"), 0)
		tracker.AddDependency(fieldpath.MustNew("a"), 0)

		_, err := tracker.FieldSet()
		require.ErrorIs(t, err, ErrContractViolation)

		require.False(t, tracker.IsClosed())
		tracker.MarkClosed()
		tracker.MarkClosed() // monotonic, idempotent
		require.True(t, tracker.IsClosed())

		fields, err := tracker.FieldSet()
		require.NoError(t, err)
		require.Len(t, fields, 2)
		require.Equal(t, "a", fields[0].String())
		require.Equal(t, "b", fields[1].String())
	})

	t.Run("report_unsatisfied", func(t *testing.T) {
		tracker := NewDependencyTracker(names)
		path := fieldpath.MustNew("missing.field")

		err := tracker.ReportUnsatisfied(path, 2, 1)
		require.Error(t, err)

		var unsat *UnsatisfiedDependencyError
		require.ErrorAs(t, err, &unsat)
		require.Equal(t, "$group", unsat.NeedingStage)
		require.Equal(t, "$project", unsat.ExcludingStage)
		require.Contains(t, err.Error(), "$missing.field")
		require.Contains(t, err.Error(), "pipeline[2].$group")
		require.Contains(t, err.Error(), "pipeline[1].$project")
	})

	t.Run("report_first_unsatisfied", func(t *testing.T) {
		tracker := NewDependencyTracker(names)
		require.NoError(t, tracker.ReportFirstUnsatisfied(1))

		tracker.AddDependency(fieldpath.MustNew("z"), 2)
		tracker.AddDependency(fieldpath.MustNew("a"), 2)

		err := tracker.ReportFirstUnsatisfied(1)
		var unsat *UnsatisfiedDependencyError
		require.ErrorAs(t, err, &unsat)
		require.Equal(t, "a", unsat.Path.String())
		require.Equal(t, 1, unsat.ExcludingIndex)
	})
}
