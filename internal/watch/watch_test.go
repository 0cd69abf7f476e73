package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgit/internal/ignore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".pygit"), 0755))

	w, err := New(root, ignore.New(".pygit", "*.log"), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan []string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, changed) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".pygit", "index"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "noise.log"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0644))

	select {
	case batch := <-changed:
		assert.Equal(t, []string{"a.txt"}, batch)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build", "deep"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))

	w, err := New(root, ignore.New(".pygit", "build"))
	require.NoError(t, err)
	defer w.Close()

	watched := w.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "src"))
	assert.NotContains(t, watched, filepath.Join(root, "build"))
	assert.NotContains(t, watched, filepath.Join(root, "build", "deep"))
}
