package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pgit/internal/errors"
	"pgit/internal/hashing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage(t *testing.T) {
	idx := New()
	a := hashing.Bytes([]byte("a"))
	b := hashing.Bytes([]byte("b"))

	idx.Stage("z.txt", a)
	idx.Stage("a.txt", b)
	idx.Stage("z.txt", b)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []Entry{
		{Path: "z.txt", Fingerprint: b},
		{Path: "a.txt", Fingerprint: b},
	}, idx.Entries())

	fp, ok := idx.Get("z.txt")
	assert.True(t, ok)
	assert.Equal(t, b, fp)

	_, ok = idx.Get("missing")
	assert.False(t, ok)

	m := idx.Map()
	m["a.txt"] = a
	fp, _ = idx.Get("a.txt")
	assert.Equal(t, b, fp, "Map must return a copy")
}

func TestStageIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fp := hashing.Bytes([]byte("x"))

	once := New()
	once.Stage("x", fp)
	require.NoError(t, Save(dir, once))
	first, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	twice := New()
	twice.Stage("x", fp)
	twice.Stage("x", fp)
	require.NoError(t, Save(dir, twice))
	second, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadSave(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
	}{
		{"empty", nil},
		{"single", []string{"a.txt"}},
		{"insertion order", []string{"c.txt", "a.txt", "dir/b.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			idx := New()
			for _, p := range tt.paths {
				idx.Stage(p, hashing.Bytes([]byte(p)))
			}

			require.NoError(t, Save(dir, idx))
			loaded, err := Load(dir)
			require.NoError(t, err)
			assert.Equal(t, idx.Entries(), loaded.Entries())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		idx, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("empty object", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{}"), 0644))
		idx, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("corrupt file", func(t *testing.T) {
		for _, content := range []string{"[1,2]", "{bad", `{"a":"nothex"}`} {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
			_, err := Load(dir)
			assert.True(t, errors.Is(err, errors.ErrCorruptObject), "content %q", content)
		}
	})
}

func TestStagedCopies(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteStaged(dir, "sub/a.txt", strings.NewReader("one")))
	require.NoError(t, WriteStaged(dir, "sub/a.txt", strings.NewReader("two")))

	data, err := os.ReadFile(StagedPath(dir, "sub/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, StagingDir, "sub"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	idx := New()
	idx.Stage("sub/a.txt", hashing.Bytes([]byte("two")))
	require.NoError(t, Save(dir, idx))

	require.NoError(t, Clear(dir))
	_, err = os.Stat(filepath.Join(dir, StagingDir))
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	// Clearing twice is fine
	assert.NoError(t, Clear(dir))
}
