package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("release_is_idempotent", func(t *testing.T) {
		r := NewRegistry()
		reg := r.Register("db.coll", nil)
		require.Equal(t, 1, r.Live("db.coll"))

		reg.Release()
		reg.Release()
		require.Equal(t, 0, r.Live("db.coll"))
	})

	t.Run("invalidate_revokes_live_claims_only", func(t *testing.T) {
		r := NewRegistry()

		var revoked int
		held := r.Register("db.coll", func() { revoked++ })
		released := r.Register("db.coll", func() { revoked++ })
		other := r.Register("db.other", func() { revoked++ })
		released.Release()

		r.InvalidateNamespace("db.coll")
		require.Equal(t, 1, revoked)
		require.True(t, held.Revoked())
		require.False(t, other.Revoked())

		// revoking twice does not re-fire callbacks
		r.InvalidateNamespace("db.coll")
		require.Equal(t, 1, revoked)
	})
}
