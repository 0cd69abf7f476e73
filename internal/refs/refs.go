// Package refs manages HEAD and the branch references under refs/heads.
package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/shared/utils"

	"go.uber.org/zap"
)

const (
	HeadFile    = "HEAD"
	HeadsPrefix = "refs/heads/"
	symbolicTag = "ref: "
)

// Kind says how HEAD names the current commit.
type Kind int

const (
	// Symbolic HEAD points at a branch ref.
	Symbolic Kind = iota
	// Detached HEAD holds a commit fingerprint directly.
	Detached
)

func (k Kind) String() string {
	switch k {
	case Symbolic:
		return "symbolic"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reference is the parsed content of HEAD. Target is set for Symbolic
// references, Commit for Detached ones.
type Reference struct {
	Kind   Kind
	Target string
	Commit hashing.Fingerprint
}

// BranchRef returns the symbolic reference for branch.
func BranchRef(branch string) Reference {
	return Reference{Kind: Symbolic, Target: HeadsPrefix + branch}
}

// Branch returns the branch name of a symbolic reference under refs/heads.
func (r Reference) Branch() (string, bool) {
	if r.Kind != Symbolic || !strings.HasPrefix(r.Target, HeadsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(r.Target, HeadsPrefix), true
}

// Store reads and writes references inside a repository directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(repoDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: repoDir, logger: logger}
}

// ReadHead parses HEAD.
func (s *Store) ReadHead() (Reference, error) {
	path := filepath.Join(s.dir, HeadFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Reference{}, errors.NotRepository(s.dir)
		}
		return Reference{}, errors.ReadFailure(path, err)
	}
	return parseHead(string(data))
}

func parseHead(content string) (Reference, error) {
	line := strings.TrimSpace(content)

	if strings.HasPrefix(line, symbolicTag) {
		target := strings.TrimSpace(strings.TrimPrefix(line, symbolicTag))
		if err := checkRefName(target); err != nil {
			return Reference{}, errors.CorruptObject("HEAD", err)
		}
		return Reference{Kind: Symbolic, Target: target}, nil
	}

	fp := hashing.Fingerprint(line)
	if !fp.Valid() {
		return Reference{}, errors.CorruptObject(fmt.Sprintf("HEAD has unexpected content %q", line), nil)
	}
	return Reference{Kind: Detached, Commit: fp}, nil
}

// WriteHead replaces HEAD with ref.
func (s *Store) WriteHead(ref Reference) error {
	var content string
	switch ref.Kind {
	case Symbolic:
		if err := checkRefName(ref.Target); err != nil {
			return errors.Validation(err.Error())
		}
		content = symbolicTag + ref.Target + "\n"
	case Detached:
		if !ref.Commit.Valid() {
			return errors.Validation(fmt.Sprintf("invalid commit %q", ref.Commit))
		}
		content = ref.Commit.String()
	default:
		return errors.Validation(fmt.Sprintf("unknown reference kind %s", ref.Kind))
	}

	if err := utils.WriteFileAtomic(filepath.Join(s.dir, HeadFile), []byte(content), 0644); err != nil {
		return fmt.Errorf("writing HEAD: %w", err)
	}
	return nil
}

// ReadRef returns the commit a named ref points to. The boolean is false
// when the ref file does not exist, which is the normal state of a branch
// before its first commit.
func (s *Store) ReadRef(name string) (hashing.Fingerprint, bool, error) {
	if err := checkRefName(name); err != nil {
		return "", false, errors.Validation(err.Error())
	}

	path := s.refPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.ReadFailure(path, err)
	}

	fp := hashing.Fingerprint(strings.TrimSpace(string(data)))
	if !fp.Valid() {
		return "", false, errors.CorruptObject(fmt.Sprintf("ref %s has unexpected content", name), nil)
	}
	return fp, true, nil
}

// WriteRef points the named ref at fp, creating parent directories.
func (s *Store) WriteRef(name string, fp hashing.Fingerprint) error {
	if err := checkRefName(name); err != nil {
		return errors.Validation(err.Error())
	}
	if !fp.Valid() {
		return errors.Validation(fmt.Sprintf("invalid commit %q", fp))
	}

	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating ref directory: %w", err)
	}
	if err := utils.WriteFileAtomic(path, []byte(fp.String()), 0644); err != nil {
		return fmt.Errorf("writing ref %s: %w", name, err)
	}
	return nil
}

// ResolveHead follows HEAD to a commit. The boolean is false for a
// repository without commits on the current branch.
func (s *Store) ResolveHead() (hashing.Fingerprint, bool, error) {
	ref, err := s.ReadHead()
	if err != nil {
		return "", false, err
	}
	if ref.Kind == Detached {
		return ref.Commit, true, nil
	}
	return s.ReadRef(ref.Target)
}

// Advance moves the current position to fp. A symbolic HEAD moves its
// branch; a detached HEAD is rewritten. HEAD never changes kind.
func (s *Store) Advance(fp hashing.Fingerprint) error {
	ref, err := s.ReadHead()
	if err != nil {
		return err
	}

	if ref.Kind == Detached {
		err = s.WriteHead(Reference{Kind: Detached, Commit: fp})
	} else {
		err = s.WriteRef(ref.Target, fp)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("advanced HEAD",
		zap.Stringer("kind", ref.Kind),
		zap.String("target", ref.Target),
		zap.String("commit", fp.String()))
	return nil
}

// CurrentBranch returns the branch HEAD points to, or false when HEAD is
// detached.
func (s *Store) CurrentBranch() (string, bool, error) {
	ref, err := s.ReadHead()
	if err != nil {
		return "", false, err
	}
	name, ok := ref.Branch()
	return name, ok, nil
}

// Branches lists the names under refs/heads in sorted order.
func (s *Store) Branches() ([]string, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(HeadsPrefix))

	var names []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

func (s *Store) refPath(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// checkRefName rejects names that would escape refs/.
func checkRefName(name string) error {
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("ref %q is not under refs/", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid ref name %q", name)
		}
	}
	return nil
}
