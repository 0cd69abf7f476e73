// Package worktree classifies working-tree files against the index and
// the last commit.
package worktree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"pgit/internal/hashing"
	"pgit/internal/ignore"
	"pgit/internal/index"

	"go.uber.org/zap"
)

// Snapshotter returns the file mapping of the last commit.
type Snapshotter interface {
	HeadFiles() (map[string]hashing.Fingerprint, error)
}

// Report groups paths by state. Every list is sorted.
type Report struct {
	Staged    []string `json:"staged"`
	Modified  []string `json:"modified"`
	Untracked []string `json:"untracked"`
	Deleted   []string `json:"deleted"`
}

// Clean reports whether nothing is staged, changed or untracked.
func (r Report) Clean() bool {
	return len(r.Staged) == 0 && len(r.Modified) == 0 &&
		len(r.Untracked) == 0 && len(r.Deleted) == 0
}

// Comparator compares one working tree with its repository.
type Comparator struct {
	root    string
	repoDir string
	ignore  *ignore.Spec
	head    Snapshotter
	logger  *zap.Logger
}

func New(root, repoDir string, spec *ignore.Spec, head Snapshotter, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{
		root:    root,
		repoDir: repoDir,
		ignore:  spec,
		head:    head,
		logger:  logger,
	}
}

// Scan hashes every file in the working tree that is not ignored. Keys are
// slash-separated paths relative to the root.
func (c *Comparator) Scan() (map[string]hashing.Fingerprint, error) {
	files := make(map[string]hashing.Fingerprint)

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel != "." && c.ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !isFile(path, d) {
			return nil
		}

		fp, err := hashing.File(path)
		if err != nil {
			return err
		}
		files[rel] = fp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning working tree: %w", err)
	}

	return files, nil
}

// isFile reports whether path is a regular file, following symlinks.
// Links to directories and dangling links are not files.
func isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Status compares the working tree, the index and the last commit.
//
// A path is staged when its indexed fingerprint differs from the last
// commit, modified when the file on disk differs from the index, untracked
// when it is not in the index, and deleted when it is indexed but gone from
// disk.
func (c *Comparator) Status() (Report, error) {
	idx, err := index.Load(c.repoDir)
	if err != nil {
		return Report{}, err
	}

	committed, err := c.head.HeadFiles()
	if err != nil {
		return Report{}, err
	}

	tree, err := c.Scan()
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Staged:    []string{},
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
	}

	for _, entry := range idx.Entries() {
		if prev, ok := committed[entry.Path]; !ok || prev != entry.Fingerprint {
			report.Staged = append(report.Staged, entry.Path)
		}

		current, onDisk := tree[entry.Path]
		switch {
		case !onDisk:
			report.Deleted = append(report.Deleted, entry.Path)
		case current != entry.Fingerprint:
			report.Modified = append(report.Modified, entry.Path)
		}
	}

	for path := range tree {
		if _, ok := idx.Get(path); !ok {
			report.Untracked = append(report.Untracked, path)
		}
	}

	sort.Strings(report.Staged)
	sort.Strings(report.Modified)
	sort.Strings(report.Untracked)
	sort.Strings(report.Deleted)

	c.logger.Debug("computed status",
		zap.Int("staged", len(report.Staged)),
		zap.Int("modified", len(report.Modified)),
		zap.Int("untracked", len(report.Untracked)),
		zap.Int("deleted", len(report.Deleted)))

	return report, nil
}
