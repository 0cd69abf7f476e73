// Package history builds commits from the index and walks the chain of
// parents back from HEAD.
package history

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/internal/index"
	"pgit/internal/object"
	"pgit/internal/refs"

	"go.uber.org/zap"
)

// Archiver keeps a permanent copy of a staged file and returns the
// fingerprint of what it stored.
type Archiver interface {
	StoreFile(path string) (hashing.Fingerprint, error)
	Exists(fp hashing.Fingerprint) (bool, error)
}

// Result describes the outcome of Commit. When NothingToCommit is set no
// other field is populated and nothing was written.
type Result struct {
	Commit          hashing.Fingerprint
	Record          *object.CommitRecord
	NothingToCommit bool
}

// Entry is one commit in a log.
type Entry struct {
	Commit hashing.Fingerprint
	Record *object.CommitRecord
}

// Graph ties together the index, object store and refs of one repository.
type Graph struct {
	repoDir  string
	workTree string
	objects  *object.Store
	refs     *refs.Store
	blobs    Archiver
	clock    func() time.Time
	logger   *zap.Logger
}

type Option func(*Graph)

// WithClock replaces the time source used to stamp commits.
func WithClock(clock func() time.Time) Option {
	return func(g *Graph) {
		g.clock = clock
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithArchiver makes Commit copy every staged file into blobs before the
// commit record is written.
func WithArchiver(blobs Archiver) Option {
	return func(g *Graph) {
		g.blobs = blobs
	}
}

// WithWorkTree lets Commit archive a file from the working tree when its
// staged copy is gone and the file still matches the index.
func WithWorkTree(root string) Option {
	return func(g *Graph) {
		g.workTree = root
	}
}

func New(repoDir string, objects *object.Store, refStore *refs.Store, opts ...Option) *Graph {
	g := &Graph{
		repoDir: repoDir,
		objects: objects,
		refs:    refStore,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Commit snapshots the index. The record is written first, then HEAD is
// advanced, and only then is the index cleared, so a failure at any step
// leaves the previous steps intact and the index still staged.
func (g *Graph) Commit(message string) (Result, error) {
	idx, err := index.Load(g.repoDir)
	if err != nil {
		return Result{}, err
	}
	if idx.Len() == 0 {
		g.logger.Info("nothing to commit")
		return Result{NothingToCommit: true}, nil
	}

	rec := &object.CommitRecord{
		Files:     idx.Map(),
		Message:   message,
		Timestamp: timestamp(g.clock()),
	}

	parent, ok, err := g.refs.ResolveHead()
	if err != nil {
		return Result{}, err
	}
	if ok {
		rec.Parent = &parent
	}

	if err := g.archive(idx); err != nil {
		return Result{}, err
	}

	fp, err := object.Fingerprint(rec)
	if err != nil {
		return Result{}, err
	}

	if err := g.objects.Put(rec, fp); err != nil {
		return Result{}, fmt.Errorf("storing commit: %w", err)
	}
	if err := g.refs.Advance(fp); err != nil {
		return Result{}, fmt.Errorf("advancing HEAD: %w", err)
	}
	if err := index.Clear(g.repoDir); err != nil {
		return Result{}, fmt.Errorf("clearing index: %w", err)
	}

	g.logger.Info("committed",
		zap.String("commit", fp.String()),
		zap.Int("files", len(rec.Files)))

	return Result{Commit: fp, Record: rec}, nil
}

func (g *Graph) archive(idx *index.Index) error {
	if g.blobs == nil {
		return nil
	}
	for _, entry := range idx.Entries() {
		staged := index.StagedPath(g.repoDir, entry.Path)
		stored, err := g.blobs.StoreFile(staged)
		if err == nil {
			if stored != entry.Fingerprint {
				return errors.CorruptObject(
					fmt.Sprintf("staged copy of %s hashes to %s, index has %s", entry.Path, stored, entry.Fingerprint), nil)
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return errors.ReadFailure(staged, err)
		}

		if err := g.archiveFallback(entry); err != nil {
			return err
		}
	}
	return nil
}

// archiveFallback handles an entry whose staged copy is missing. The
// content is fine if it is already archived, or if the working-tree file
// still has the indexed fingerprint.
func (g *Graph) archiveFallback(entry index.Entry) error {
	ok, err := g.blobs.Exists(entry.Fingerprint)
	if err != nil {
		return fmt.Errorf("checking blob %s: %w", entry.Fingerprint, err)
	}
	if ok {
		return nil
	}

	if g.workTree != "" {
		src := filepath.Join(g.workTree, filepath.FromSlash(entry.Path))
		if current, err := hashing.File(src); err == nil && current == entry.Fingerprint {
			stored, err := g.blobs.StoreFile(src)
			if err != nil {
				return errors.ReadFailure(src, err)
			}
			if stored == entry.Fingerprint {
				g.logger.Debug("archived from working tree", zap.String("path", entry.Path))
				return nil
			}
		}
	}

	return errors.CorruptObject(
		fmt.Sprintf("content of %s (%s) is not staged, archived or in the working tree", entry.Path, entry.Fingerprint.Short()), nil)
}

// Get loads one commit. A commit that is referenced but missing is a broken
// history.
func (g *Graph) Get(fp hashing.Fingerprint) (*object.CommitRecord, error) {
	rec, ok, err := g.objects.Get(fp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.CorruptHistory(fmt.Sprintf("commit %s is missing", fp))
	}
	return rec, nil
}

// Log returns start and all its ancestors, newest first.
func (g *Graph) Log(start hashing.Fingerprint) ([]Entry, error) {
	var entries []Entry
	seen := make(map[hashing.Fingerprint]bool)

	for next := &start; next != nil; {
		fp := *next
		if seen[fp] {
			return nil, errors.CorruptHistory(fmt.Sprintf("commit %s appears twice in history", fp))
		}
		seen[fp] = true

		rec, err := g.Get(fp)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Commit: fp, Record: rec})
		next = rec.Parent
	}

	return entries, nil
}

// LogHead walks history from HEAD. A repository without commits has an
// empty log.
func (g *Graph) LogHead() ([]Entry, error) {
	head, ok, err := g.refs.ResolveHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return g.Log(head)
}

// HeadFiles returns the snapshot recorded by the HEAD commit, or an empty
// snapshot when there are no commits yet.
func (g *Graph) HeadFiles() (map[string]hashing.Fingerprint, error) {
	head, ok, err := g.refs.ResolveHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]hashing.Fingerprint{}, nil
	}
	rec, err := g.Get(head)
	if err != nil {
		return nil, err
	}
	return rec.Files, nil
}

// timestamp converts t to fractional seconds, truncated to microseconds.
func timestamp(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
