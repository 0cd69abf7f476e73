// Package object persists commit records under commits/<fingerprint>.json.
// A record's fingerprint is the hash of its canonical serialization, so a
// stored record can always be checked against its file name.
package object

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/shared/utils"

	"go.uber.org/zap"
)

// CommitRecord is an immutable snapshot: every tracked path mapped to the
// fingerprint of its content, plus a link to the previous snapshot.
//
// Field order is the canonical key order.
type CommitRecord struct {
	Files     map[string]hashing.Fingerprint `json:"files"`
	Message   string                         `json:"message"`
	Parent    *hashing.Fingerprint           `json:"parent"`
	Timestamp float64                        `json:"timestamp"`
}

// Canonical returns the compact serialization the fingerprint is computed
// over. Map keys are emitted in sorted order.
func Canonical(rec *CommitRecord) ([]byte, error) {
	files := rec.Files
	if files == nil {
		files = map[string]hashing.Fingerprint{}
	}
	return json.Marshal(&CommitRecord{
		Files:     files,
		Message:   rec.Message,
		Parent:    rec.Parent,
		Timestamp: rec.Timestamp,
	})
}

// Fingerprint computes the identity of rec.
func Fingerprint(rec *CommitRecord) (hashing.Fingerprint, error) {
	data, err := Canonical(rec)
	if err != nil {
		return "", fmt.Errorf("encoding commit: %w", err)
	}
	return hashing.Bytes(data), nil
}

// Validate checks that every fingerprint inside rec is well formed.
func Validate(rec *CommitRecord) error {
	if rec == nil {
		return errors.Validation("commit record is nil")
	}
	if rec.Parent != nil && !rec.Parent.Valid() {
		return errors.Validation(fmt.Sprintf("invalid parent %q", *rec.Parent))
	}
	for _, path := range utils.SortedKeys(rec.Files) {
		if path == "" {
			return errors.Validation("empty path in commit files")
		}
		if fp := rec.Files[path]; !fp.Valid() {
			return errors.Validation(fmt.Sprintf("invalid fingerprint %q for %s", fp, path))
		}
	}
	return nil
}

// Store reads and writes commit records in a single directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore returns a Store rooted at dir. The directory is created lazily
// on the first Put.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) path(fp hashing.Fingerprint) string {
	return filepath.Join(s.dir, string(fp)+".json")
}

// Put writes rec under fp. Writing a fingerprint that is already present
// leaves the existing file untouched.
func (s *Store) Put(rec *CommitRecord, fp hashing.Fingerprint) error {
	if !fp.Valid() {
		return errors.Validation(fmt.Sprintf("invalid fingerprint %q", fp))
	}
	if err := Validate(rec); err != nil {
		return err
	}

	want, err := Fingerprint(rec)
	if err != nil {
		return err
	}
	if want != fp {
		return errors.Validation(fmt.Sprintf("fingerprint %s does not match record %s", fp, want))
	}

	path := s.path(fp)
	if _, err := os.Stat(path); err == nil {
		s.logger.Debug("commit already stored", zap.String("commit", fp.String()))
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating commits directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding commit: %w", err)
	}

	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("writing commit %s: %w", fp, err)
	}

	s.logger.Debug("stored commit",
		zap.String("commit", fp.String()),
		zap.Int("files", len(rec.Files)))
	return nil
}

// storedRecord mirrors CommitRecord with every field optional, so missing
// fields can be told apart from zero values.
type storedRecord struct {
	Files     map[string]hashing.Fingerprint `json:"files"`
	Message   *string                        `json:"message"`
	Parent    json.RawMessage                `json:"parent"`
	Timestamp *float64                       `json:"timestamp"`
}

// Get loads the record stored under fp. The boolean is false when no such
// record exists. A record that cannot be decoded, is missing fields, or no
// longer hashes to fp is reported as CorruptObject.
func (s *Store) Get(fp hashing.Fingerprint) (*CommitRecord, bool, error) {
	if !fp.Valid() {
		return nil, false, errors.Validation(fmt.Sprintf("invalid fingerprint %q", fp))
	}

	path := s.path(fp)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.ReadFailure(path, err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, false, errors.CorruptObject(fmt.Sprintf("commit %s", fp), err)
	}

	got, err := Fingerprint(rec)
	if err != nil {
		return nil, false, errors.CorruptObject(fmt.Sprintf("commit %s", fp), err)
	}
	if got != fp {
		return nil, false, errors.CorruptObject(
			fmt.Sprintf("commit %s hashes to %s", fp, got), nil)
	}

	return rec, true, nil
}

// Exists reports whether a record is stored under fp.
func (s *Store) Exists(fp hashing.Fingerprint) (bool, error) {
	if !fp.Valid() {
		return false, nil
	}
	_, err := os.Stat(s.path(fp))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func decode(data []byte) (*CommitRecord, error) {
	var raw storedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch {
	case raw.Files == nil:
		return nil, fmt.Errorf("missing files")
	case raw.Message == nil:
		return nil, fmt.Errorf("missing message")
	case raw.Timestamp == nil:
		return nil, fmt.Errorf("missing timestamp")
	case raw.Parent == nil:
		return nil, fmt.Errorf("missing parent")
	}

	rec := &CommitRecord{
		Files:     raw.Files,
		Message:   *raw.Message,
		Timestamp: *raw.Timestamp,
	}
	if !bytes.Equal(bytes.TrimSpace(raw.Parent), []byte("null")) {
		var parent hashing.Fingerprint
		if err := json.Unmarshal(raw.Parent, &parent); err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
		rec.Parent = &parent
	}

	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
