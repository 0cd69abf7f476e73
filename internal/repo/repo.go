// Package repo opens a working tree and its .pygit directory and exposes
// the user-level operations: stage, commit, status, log and show.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pgit/internal/config"
	"pgit/internal/errors"
	"pgit/internal/history"
	"pgit/internal/ignore"
	"pgit/internal/index"
	"pgit/internal/logging"
	"pgit/internal/object"
	"pgit/internal/refs"
	"pgit/internal/safe"
	"pgit/internal/storage"
	"pgit/internal/worktree"
	"pgit/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	// DirName is the repository directory inside the working tree.
	DirName = ".pygit"

	objectsDir = "objects"
	commitsDir = "commits"
	metaDir    = "meta"
	headsDir   = "refs/heads"
)

// Repository is an open working tree. It holds the metadata database lock
// until Close.
type Repository struct {
	Root   string
	Dir    string
	Config *config.Config
	Logger *logging.Logger

	Objects *object.Store
	Refs    *refs.Store
	Blobs   *safe.Safe
	Graph   *history.Graph
	Tree    *worktree.Comparator
	Ignore  *ignore.Spec

	db *badger.DB
}

// Options tune Open. The zero value is usable.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time
}

// Initialize creates the repository layout under root. Existing HEAD,
// index, config and ignore files are left alone, so running it twice is
// safe. It reports whether a repository was already present.
func Initialize(root string, cfg *config.Config) (bool, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return false, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}
	dir := filepath.Join(abs, DirName)

	_, statErr := os.Stat(filepath.Join(dir, refs.HeadFile))
	existed := statErr == nil

	dirs := []string{
		filepath.Join(dir, objectsDir),
		filepath.Join(dir, filepath.FromSlash(headsDir)),
		filepath.Join(dir, commitsDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return false, fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if !existed {
		if err := refs.NewStore(dir, nil).WriteHead(refs.BranchRef(cfg.Core.DefaultBranch)); err != nil {
			return false, err
		}
	}

	if err := writeIfMissing(filepath.Join(dir, index.FileName), []byte("{}")); err != nil {
		return false, err
	}

	if _, err := os.Stat(filepath.Join(dir, config.FileName)); os.IsNotExist(err) {
		if err := cfg.Save(filepath.Join(dir, config.FileName)); err != nil {
			return false, err
		}
	}

	if err := writeIfMissing(filepath.Join(abs, ignore.FileName), []byte(ignore.Header)); err != nil {
		return false, err
	}

	return existed, nil
}

func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := utils.WriteFileAtomic(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// FindRoot walks up from start to the nearest directory containing a
// repository.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NotRepository(start)
}

// Open finds the repository containing start and opens it.
func Open(start string, opts Options) (*Repository, error) {
	root, err := FindRoot(start)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, DirName)

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithSession(root)
	log := logger.Logger

	db, err := storage.Open(filepath.Join(dir, metaDir))
	if err != nil {
		return nil, err
	}

	blobs, err := safe.New(db, safe.Options{
		Root:      filepath.Join(dir, objectsDir),
		CacheSize: cfg.Storage.CacheSize,
		Compression: safe.CompressionOptions{
			MinSize: cfg.Storage.CompressMinSize,
			Level:   cfg.Storage.CompressionLevel,
		},
		Logger: log.Named("blobs"),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing blob store: %w", err)
	}

	spec, err := ignore.Load(root, DirName, log.Named("ignore"))
	if err != nil {
		blobs.Close()
		db.Close()
		return nil, err
	}

	objects := object.NewStore(filepath.Join(dir, commitsDir), log.Named("objects"))
	refStore := refs.NewStore(dir, log.Named("refs"))

	graphOpts := []history.Option{
		history.WithArchiver(blobs),
		history.WithWorkTree(root),
		history.WithLogger(log.Named("history")),
	}
	if opts.Clock != nil {
		graphOpts = append(graphOpts, history.WithClock(opts.Clock))
	}
	graph := history.New(dir, objects, refStore, graphOpts...)

	r := &Repository{
		Root:    root,
		Dir:     dir,
		Config:  cfg,
		Logger:  logger,
		Objects: objects,
		Refs:    refStore,
		Blobs:   blobs,
		Graph:   graph,
		Tree:    worktree.New(root, dir, spec, graph, log.Named("worktree")),
		Ignore:  spec,
		db:      db,
	}

	log.Debug("opened repository", zap.String("dir", dir))
	return r, nil
}

// Close releases the blob store and the metadata database.
func (r *Repository) Close() error {
	r.Blobs.Close()
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
