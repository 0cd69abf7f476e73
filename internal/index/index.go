// Package index holds the staging area: the ordered set of paths that the
// next commit will snapshot, persisted as a JSON object in <repo>/index,
// plus a copy of each staged file under <repo>/staging.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/shared/utils"
)

const (
	FileName   = "index"
	StagingDir = "staging"
)

// Entry is one staged path.
type Entry struct {
	Path        string
	Fingerprint hashing.Fingerprint
}

// Index maps paths to fingerprints and remembers insertion order.
type Index struct {
	order []string
	files map[string]hashing.Fingerprint
}

func New() *Index {
	return &Index{files: make(map[string]hashing.Fingerprint)}
}

// Stage records fp for path. Restaging a path overwrites its fingerprint
// but keeps its original position.
func (idx *Index) Stage(path string, fp hashing.Fingerprint) {
	if _, ok := idx.files[path]; !ok {
		idx.order = append(idx.order, path)
	}
	idx.files[path] = fp
}

func (idx *Index) Get(path string) (hashing.Fingerprint, bool) {
	fp, ok := idx.files[path]
	return fp, ok
}

func (idx *Index) Len() int {
	return len(idx.order)
}

// Entries lists staged paths in the order they were first staged.
func (idx *Index) Entries() []Entry {
	entries := make([]Entry, 0, len(idx.order))
	for _, path := range idx.order {
		entries = append(entries, Entry{Path: path, Fingerprint: idx.files[path]})
	}
	return entries
}

// Map returns a copy of the path to fingerprint mapping.
func (idx *Index) Map() map[string]hashing.Fingerprint {
	m := make(map[string]hashing.Fingerprint, len(idx.files))
	for k, v := range idx.files {
		m[k] = v
	}
	return m
}

// MarshalJSON writes entries as a single object in insertion order.
func (idx *Index) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, path := range idx.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(idx.files[path])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order.
func (idx *Index) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("index must be a JSON object")
	}

	loaded := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		path, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}

		var fp hashing.Fingerprint
		if err := dec.Decode(&fp); err != nil {
			return fmt.Errorf("entry %s: %w", path, err)
		}
		if !fp.Valid() {
			return fmt.Errorf("entry %s: invalid fingerprint %q", path, fp)
		}
		loaded.Stage(path, fp)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*idx = *loaded
	return nil
}

// Load reads the index from repoDir. A missing index file is an empty index.
func Load(repoDir string) (*Index, error) {
	path := filepath.Join(repoDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.ReadFailure(path, err)
	}

	idx := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return idx, nil
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, errors.CorruptObject("index", err)
	}
	return idx, nil
}

// Save replaces the index file in repoDir with idx.
func Save(repoDir string, idx *Index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(repoDir, FileName), data, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// Clear removes the index file and every staged copy. Pieces that are
// already gone are not an error.
func Clear(repoDir string) error {
	if err := os.Remove(filepath.Join(repoDir, FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing index: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(repoDir, StagingDir)); err != nil {
		return fmt.Errorf("removing staging area: %w", err)
	}
	return nil
}

// StagedPath is where the staged copy of path lives.
func StagedPath(repoDir, path string) string {
	return filepath.Join(repoDir, StagingDir, filepath.FromSlash(path))
}

// WriteStaged stores content as the single staged copy of path, replacing
// any earlier copy.
func WriteStaged(repoDir, path string, content io.Reader) error {
	dst := StagedPath(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := utils.WriteFileAtomic(dst, data, 0644); err != nil {
		return fmt.Errorf("writing staged copy of %s: %w", path, err)
	}
	return nil
}
