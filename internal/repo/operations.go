package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/internal/history"
	"pgit/internal/index"
	"pgit/internal/object"
	"pgit/internal/safe"
	"pgit/internal/worktree"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StageResult describes what Stage did with one path.
type StageResult struct {
	Path        string
	Fingerprint hashing.Fingerprint
	// Ignored paths are left out of the index entirely.
	Ignored bool
	// Unchanged is set when the path was already staged with this content.
	Unchanged bool
}

// relPath turns an absolute path, or one relative to the root, into a
// slash-separated path relative to the root.
func (r *Repository) relPath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.Root, path)
	}
	rel, err := filepath.Rel(r.Root, filepath.Clean(abs))
	if err != nil {
		return "", errors.Validation(fmt.Sprintf("%s: %v", path, err))
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.Validation(fmt.Sprintf("%s is outside the repository at %s", path, r.Root))
	}
	return rel, nil
}

// Stage copies a file into the staging area and records its fingerprint
// in the index.
func (r *Repository) Stage(path string) (StageResult, error) {
	rel, err := r.relPath(path)
	if err != nil {
		return StageResult{}, err
	}
	abs := filepath.Join(r.Root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return StageResult{}, errors.PathNotFound(rel)
		}
		return StageResult{}, errors.ReadFailure(rel, err)
	}

	if r.Ignore.Match(rel) {
		r.Logger.Info("skipping ignored path", zap.String("path", rel))
		return StageResult{Path: rel, Ignored: true}, nil
	}
	if info.IsDir() {
		return StageResult{}, errors.Validation(fmt.Sprintf("%s is a directory", rel))
	}
	// Symlinks are followed, as in worktree.Scan.
	if !info.Mode().IsRegular() {
		return StageResult{}, errors.Validation(fmt.Sprintf("%s is not a regular file", rel))
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return StageResult{}, errors.ReadFailure(rel, err)
	}
	fp := hashing.Bytes(content)

	idx, err := index.Load(r.Dir)
	if err != nil {
		return StageResult{}, err
	}
	prev, staged := idx.Get(rel)

	if err := index.WriteStaged(r.Dir, rel, bytes.NewReader(content)); err != nil {
		return StageResult{}, err
	}
	idx.Stage(rel, fp)
	if err := index.Save(r.Dir, idx); err != nil {
		return StageResult{}, err
	}

	r.Logger.Debug("staged", zap.String("path", rel), zap.String("hash", fp.String()))
	return StageResult{Path: rel, Fingerprint: fp, Unchanged: staged && prev == fp}, nil
}

// StageAll stages every path. A failing path does not stop the others;
// all failures are returned together.
func (r *Repository) StageAll(paths []string) ([]StageResult, error) {
	var (
		results []StageResult
		errs    error
	)
	for _, p := range paths {
		res, err := r.Stage(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Commit records the staged files as a new commit on HEAD.
func (r *Repository) Commit(message string) (history.Result, error) {
	return r.Graph.Commit(message)
}

// Status classifies the working tree.
func (r *Repository) Status() (worktree.Report, error) {
	return r.Tree.Status()
}

// Log lists commits from HEAD back to the root commit.
func (r *Repository) Log() ([]history.Entry, error) {
	return r.Graph.LogHead()
}

// ShowCommit loads a commit by fingerprint.
func (r *Repository) ShowCommit(fp hashing.Fingerprint) (*object.CommitRecord, error) {
	return r.Graph.Get(fp)
}

// Show returns the content of a committed file.
func (r *Repository) Show(fp hashing.Fingerprint) ([]byte, error) {
	if !fp.Valid() {
		return nil, errors.Validation(fmt.Sprintf("invalid fingerprint %q", fp))
	}
	content, err := r.Blobs.Get(fp)
	if err != nil {
		if errors.Is(err, safe.ErrContentNotFound) {
			return nil, errors.PathNotFound(fp.String())
		}
		if errors.Is(err, safe.ErrHashMismatch) {
			return nil, errors.CorruptObject(fmt.Sprintf("blob %s", fp), err)
		}
		return nil, err
	}
	return content, nil
}

// VerifyReport summarizes an integrity check.
type VerifyReport struct {
	Commits int
	Blobs   int
	Bytes   int64
}

// Verify walks the history from HEAD, checks that every file each commit
// references is archived, and re-hashes every stored blob. All problems
// found are returned together.
func (r *Repository) Verify() (VerifyReport, error) {
	var (
		report VerifyReport
		errs   error
	)

	log, err := r.Graph.LogHead()
	if err != nil {
		return report, err
	}
	report.Commits = len(log)

	for _, entry := range log {
		for path, fp := range entry.Record.Files {
			ok, err := r.Blobs.Exists(fp)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if !ok {
				errs = multierr.Append(errs, errors.CorruptHistory(
					fmt.Sprintf("commit %s: %s (%s) has no stored content", entry.Commit.Short(), path, fp.Short())))
			}
		}
	}

	metas, err := r.Blobs.List()
	if err != nil {
		return report, multierr.Append(errs, err)
	}
	for _, meta := range metas {
		report.Blobs++
		report.Bytes += meta.StoredSize
		if err := r.Blobs.Verify(meta.Hash); err != nil {
			errs = multierr.Append(errs, errors.CorruptObject(fmt.Sprintf("blob %s", meta.Hash), err))
		}
	}

	r.Logger.Info("verified repository",
		zap.Int("commits", report.Commits),
		zap.Int("blobs", report.Blobs),
		zap.Int("problems", len(multierr.Errors(errs))))

	return report, errs
}
