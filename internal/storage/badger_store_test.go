package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

func (r *record) GetID() string { return r.ID }

func setupStore(t *testing.T) *BadgerStore {
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewBadgerStore(db, "test")
}

func TestBadgerStore(t *testing.T) {
	store := setupStore(t)

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, store.Create(&record{ID: "a", Size: 1}))

		// Try to create duplicate
		assert.Error(t, store.Create(&record{ID: "a", Size: 2}))

		// Empty ids are rejected
		assert.Error(t, store.Create(&record{}))
	})

	t.Run("Get", func(t *testing.T) {
		var r record
		require.NoError(t, store.Get("a", &r))
		assert.Equal(t, int64(1), r.Size)

		err := store.Get("does-not-exist", &r)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Put", func(t *testing.T) {
		require.NoError(t, store.Put(&record{ID: "b", Size: 5}))
		require.NoError(t, store.Put(&record{ID: "b", Size: 6}))

		var r record
		require.NoError(t, store.Get("b", &r))
		assert.Equal(t, int64(6), r.Size)
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, store.Update(&record{ID: "a", Size: 10}))

		var r record
		require.NoError(t, store.Get("a", &r))
		assert.Equal(t, int64(10), r.Size)

		err := store.Update(&record{ID: "missing"})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("List", func(t *testing.T) {
		var all []record
		require.NoError(t, store.List(&all))
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, "b", all[1].ID)
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := store.Exists("a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists("missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
