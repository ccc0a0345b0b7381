package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/driftdb/driftdb/pkg/fieldpath"
	"github.com/driftdb/driftdb/pkg/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sortKey(t *testing.T, fields ...string) storage.SortKey {
	t.Helper()
	key := make(storage.SortKey, 0, len(fields))
	for _, f := range fields {
		desc := false
		if f[0] == '-' {
			desc = true
			f = f[1:]
		}
		key = append(key, storage.SortField{Path: fieldpath.MustNew(f), Descending: desc})
	}
	return key
}

// drainField walks the scan to completion and collects one field from every
// record passing the residual matcher.
func drainField(t *testing.T, scan storage.RecordScan, field string) []any {
	t.Helper()
	ctx := context.Background()

	var out []any
	for scan.HasMore() {
		rec, err := scan.Current()
		require.NoError(t, err)
		keep := true
		if m := scan.Matcher(); m != nil {
			keep, err = m.Matches(rec.Data)
			require.NoError(t, err)
		}
		if keep {
			out = append(out, gjson.GetBytes(rec.Data, field).Value())
		}
		require.NoError(t, scan.Advance(ctx))
	}
	return out
}

func TestCollectionScan(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves_insertion_order", func(t *testing.T) {
		ds := New()
		_, err := ds.Insert(ctx, "orders",
			map[string]any{"n": 3.0},
			map[string]any{"n": 1.0},
			map[string]any{"n": 2.0},
		)
		require.NoError(t, err)

		scan, err := ds.AcquireScan(ctx, storage.ScanRequest{Namespace: "orders"})
		require.NoError(t, err)
		defer scan.Close()

		require.Equal(t, []any{3.0, 1.0, 2.0}, drainField(t, scan, "n"))
	})

	t.Run("attaches_residual_matcher_for_filter", func(t *testing.T) {
		ds := New()
		_, err := ds.Insert(ctx, "orders",
			map[string]any{"n": 1.0, "kind": "a"},
			map[string]any{"n": 2.0, "kind": "b"},
			map[string]any{"n": 3.0, "kind": "a"},
		)
		require.NoError(t, err)

		scan, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Filter:    storage.Filter{"kind": "a"},
		})
		require.NoError(t, err)
		defer scan.Close()

		require.NotNil(t, scan.Matcher())
		require.Equal(t, []any{1.0, 3.0}, drainField(t, scan, "n"))
	})

	t.Run("rejects_malformed_filter", func(t *testing.T) {
		ds := New()
		_, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Filter:    storage.Filter{"n": map[string]any{"$bogus": 1}},
		})
		require.Error(t, err)
	})
}

func TestSortedScan(t *testing.T) {
	ctx := context.Background()

	t.Run("no_index_returns_no_compatible_scan", func(t *testing.T) {
		ds := New()
		_, err := ds.Insert(ctx, "orders", map[string]any{"n": 1.0})
		require.NoError(t, err)

		_, err = ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Sort:      sortKey(t, "n"),
		})
		require.ErrorIs(t, err, storage.ErrNoCompatibleScan)
	})

	t.Run("index_serves_matching_sort", func(t *testing.T) {
		ds := New()
		require.NoError(t, ds.CreateIndex("orders", sortKey(t, "n")))
		_, err := ds.Insert(ctx, "orders",
			map[string]any{"n": 3.0},
			map[string]any{"n": 1.0},
			map[string]any{"n": 2.0},
		)
		require.NoError(t, err)

		scan, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Sort:      sortKey(t, "n"),
		})
		require.NoError(t, err)
		defer scan.Close()

		require.Equal(t, []any{1.0, 2.0, 3.0}, drainField(t, scan, "n"))
	})

	t.Run("descending_sort_needs_descending_index", func(t *testing.T) {
		ds := New()
		require.NoError(t, ds.CreateIndex("orders", sortKey(t, "n")))

		_, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Sort:      sortKey(t, "-n"),
		})
		require.ErrorIs(t, err, storage.ErrNoCompatibleScan)
	})

	t.Run("equality_prefix_unlocks_suffix_sort", func(t *testing.T) {
		ds := New()
		require.NoError(t, ds.CreateIndex("orders", sortKey(t, "region", "n")))
		_, err := ds.Insert(ctx, "orders",
			map[string]any{"region": "eu", "n": 2.0},
			map[string]any{"region": "us", "n": 9.0},
			map[string]any{"region": "eu", "n": 1.0},
		)
		require.NoError(t, err)

		scan, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Filter:    storage.Filter{"region": "eu"},
			Sort:      sortKey(t, "n"),
		})
		require.NoError(t, err)
		defer scan.Close()

		require.Equal(t, []any{1.0, 2.0}, drainField(t, scan, "n"))
	})

	t.Run("range_filter_does_not_pin_index_prefix", func(t *testing.T) {
		ds := New()
		require.NoError(t, ds.CreateIndex("orders", sortKey(t, "region", "n")))

		_, err := ds.AcquireScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Filter:    storage.Filter{"region": map[string]any{"$gt": "a"}},
			Sort:      sortKey(t, "n"),
		})
		require.ErrorIs(t, err, storage.ErrNoCompatibleScan)
	})
}

func TestDropCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("suspended_scan_fails_on_next_advance", func(t *testing.T) {
		ds := New()
		_, err := ds.Insert(ctx, "orders",
			map[string]any{"n": 1.0},
			map[string]any{"n": 2.0},
		)
		require.NoError(t, err)

		scan, err := ds.AcquireScan(ctx, storage.ScanRequest{Namespace: "orders"})
		require.NoError(t, err)
		defer scan.Close()

		require.True(t, scan.HasMore())
		_, err = scan.Current()
		require.NoError(t, err)

		require.NoError(t, ds.DropCollection("orders"))

		err = scan.Advance(ctx)
		require.ErrorIs(t, err, storage.ErrScanInvalidated)
	})

	t.Run("revokes_live_registrations", func(t *testing.T) {
		ds := New()
		_, err := ds.Insert(ctx, "orders", map[string]any{"n": 1.0})
		require.NoError(t, err)

		revoked := false
		reg := ds.Registry().Register("orders", func() { revoked = true })
		defer reg.Release()

		require.NoError(t, ds.DropCollection("orders"))
		require.True(t, revoked)
		require.True(t, reg.Revoked())
	})

	t.Run("unknown_namespace_is_not_found", func(t *testing.T) {
		ds := New()
		require.ErrorIs(t, ds.DropCollection("orders"), storage.ErrNotFound)
	})
}

func TestScanInterruption(t *testing.T) {
	ds := New()
	ctx := context.Background()
	_, err := ds.Insert(ctx, "orders", map[string]any{"n": 1.0})
	require.NoError(t, err)

	scan, err := ds.AcquireScan(ctx, storage.ScanRequest{Namespace: "orders"})
	require.NoError(t, err)
	defer scan.Close()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, scan.Advance(cancelled), context.Canceled)
}

func TestExplainScan(t *testing.T) {
	ctx := context.Background()

	ds := New()
	require.NoError(t, ds.CreateIndex("orders", sortKey(t, "n")))

	t.Run("collscan_without_sort", func(t *testing.T) {
		plan, err := ds.ExplainScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Filter:    storage.Filter{"kind": "a"},
		})
		require.NoError(t, err)
		require.Equal(t, "COLLSCAN", plan["stage"])
	})

	t.Run("ixscan_with_served_sort", func(t *testing.T) {
		plan, err := ds.ExplainScan(ctx, storage.ScanRequest{
			Namespace: "orders",
			Sort:      sortKey(t, "n"),
		})
		require.NoError(t, err)
		require.Equal(t, "IXSCAN", plan["stage"])
		require.Equal(t, "n_1", plan["index"])
	})
}
