// Package ignore decides which working-tree paths are never tracked.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileName is the ignore file at the working-tree root.
const FileName = ".pygitignore"

// Header is written into a fresh ignore file.
const Header = "# Add files or directories to ignore\n"

// Spec is an ordered list of glob patterns. The zero value ignores only
// the ignore file itself and the repository directory.
type Spec struct {
	repoDir  string
	patterns []string
}

// Load reads <root>/.pygitignore. A missing file yields a Spec without
// patterns. repoDir is the repository directory name relative to root.
// Malformed patterns are logged and dropped.
func Load(root, repoDir string, logger *zap.Logger) (*Spec, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Spec{repoDir: repoDir}

	f, err := os.Open(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("opening %s: %w", FileName, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern := strings.TrimSuffix(line, "/")
		if _, err := path.Match(pattern, ""); err != nil {
			logger.Warn("skipping malformed ignore pattern",
				zap.String("pattern", line),
				zap.Error(err))
			continue
		}
		s.patterns = append(s.patterns, pattern)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	return s, nil
}

// New builds a Spec from patterns that are already known to be valid.
func New(repoDir string, patterns ...string) *Spec {
	return &Spec{repoDir: repoDir, patterns: patterns}
}

func (s *Spec) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// Match reports whether rel, a slash-separated path relative to the
// working-tree root, is ignored. A pattern matches a path when it matches
// the path, a leading directory of it, or any single component.
func (s *Spec) Match(rel string) bool {
	rel = strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "./")
	if rel == "." || rel == "" {
		return false
	}
	if rel == FileName {
		return true
	}

	parts := strings.Split(rel, "/")
	if s.repoDir != "" && parts[0] == s.repoDir {
		return true
	}

	for _, pattern := range s.patterns {
		for i := 1; i <= len(parts); i++ {
			if matched, _ := path.Match(pattern, parts[i-1]); matched {
				return true
			}
			if matched, _ := path.Match(pattern, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
	}
	return false
}
