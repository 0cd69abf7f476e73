package object

import (
	"os"
	"path/filepath"
	"testing"

	"pgit/internal/errors"
	"pgit/internal/hashing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(parent *hashing.Fingerprint) *CommitRecord {
	return &CommitRecord{
		Files: map[string]hashing.Fingerprint{
			"b.txt": hashing.Bytes([]byte("b")),
			"a.txt": hashing.Bytes([]byte("a")),
		},
		Message:   "first",
		Parent:    parent,
		Timestamp: 1700000000.5,
	}
}

func TestCanonical(t *testing.T) {
	rec := sampleRecord(nil)

	data, err := Canonical(rec)
	require.NoError(t, err)

	want := `{"files":{"a.txt":"` + string(hashing.Bytes([]byte("a"))) +
		`","b.txt":"` + string(hashing.Bytes([]byte("b"))) +
		`"},"message":"first","parent":null,"timestamp":1700000000.5}`
	assert.Equal(t, want, string(data))

	t.Run("nil files encode as empty object", func(t *testing.T) {
		data, err := Canonical(&CommitRecord{Message: "m", Timestamp: 1})
		require.NoError(t, err)
		assert.Equal(t, `{"files":{},"message":"m","parent":null,"timestamp":1}`, string(data))
	})
}

func TestFingerprintIsDeterministic(t *testing.T) {
	first, err := Fingerprint(sampleRecord(nil))
	require.NoError(t, err)
	second, err := Fingerprint(sampleRecord(nil))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	changed := sampleRecord(nil)
	changed.Message = "other"
	third, err := Fingerprint(changed)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	parent := hashing.Bytes([]byte("parent"))
	withParent, err := Fingerprint(sampleRecord(&parent))
	require.NoError(t, err)
	assert.NotEqual(t, first, withParent)

	later := sampleRecord(nil)
	later.Timestamp += 0.000001
	fp, err := Fingerprint(later)
	require.NoError(t, err)
	assert.NotEqual(t, first, fp, "timestamp is part of the fingerprint")

	extra := sampleRecord(nil)
	extra.Files["c.txt"] = hashing.Bytes([]byte("c"))
	fp, err = Fingerprint(extra)
	require.NoError(t, err)
	assert.NotEqual(t, first, fp, "adding a file changes the fingerprint")

	edited := sampleRecord(nil)
	edited.Files["a.txt"] = hashing.Bytes([]byte("a2"))
	fp, err = Fingerprint(edited)
	require.NoError(t, err)
	assert.NotEqual(t, first, fp, "changing a file's content changes the fingerprint")

	// Files built in the opposite order hash the same.
	reordered := sampleRecord(nil)
	reordered.Files = make(map[string]hashing.Fingerprint)
	reordered.Files["a.txt"] = hashing.Bytes([]byte("a"))
	reordered.Files["b.txt"] = hashing.Bytes([]byte("b"))
	fp, err = Fingerprint(reordered)
	require.NoError(t, err)
	assert.Equal(t, first, fp)
}

func TestStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "commits")
	store := NewStore(dir, nil)

	rec := sampleRecord(nil)
	fp, err := Fingerprint(rec)
	require.NoError(t, err)

	t.Run("Get absent", func(t *testing.T) {
		got, ok, err := store.Get(fp)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("Put then Get", func(t *testing.T) {
		require.NoError(t, store.Put(rec, fp))

		got, ok, err := store.Get(fp)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rec, got)

		exists, err := store.Exists(fp)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Put is idempotent", func(t *testing.T) {
		path := filepath.Join(dir, string(fp)+".json")
		before, err := os.ReadFile(path)
		require.NoError(t, err)

		require.NoError(t, store.Put(rec, fp))

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("Put rejects mismatched fingerprint", func(t *testing.T) {
		err := store.Put(rec, hashing.Bytes([]byte("something else")))
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("Child links to parent", func(t *testing.T) {
		child := sampleRecord(&fp)
		child.Message = "second"
		childFP, err := Fingerprint(child)
		require.NoError(t, err)
		require.NoError(t, store.Put(child, childFP))

		got, ok, err := store.Get(childFP)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, got.Parent)
		assert.Equal(t, fp, *got.Parent)
	})
}

func TestStoreCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{not json"},
		{"missing files", `{"message":"m","parent":null,"timestamp":1}`},
		{"missing parent", `{"files":{},"message":"m","timestamp":1}`},
		{"bad file fingerprint", `{"files":{"a":"zz"},"message":"m","parent":null,"timestamp":1}`},
		{"bad parent", `{"files":{},"message":"m","parent":"nope","timestamp":1}`},
		{"hash mismatch", `{"files":{},"message":"edited","parent":null,"timestamp":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, nil)

			fp, err := Fingerprint(&CommitRecord{Message: "m", Timestamp: 1})
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, string(fp)+".json"), []byte(tt.content), 0644))

			_, _, err = store.Get(fp)
			assert.True(t, errors.Is(err, errors.ErrCorruptObject), "got %v", err)
		})
	}
}
