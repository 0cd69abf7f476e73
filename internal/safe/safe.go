// Package safe is the deduplicated blob store behind objects/. Blobs are
// addressed by the fingerprint of their uncompressed content.
package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pgit/internal/hashing"
	"pgit/internal/storage"
	"pgit/shared/utils"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
	ErrHashMismatch    = errors.New("content hash mismatch")
)

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       hashing.Fingerprint `json:"hash"`
	Size       int64               `json:"size"`
	StoredSize int64               `json:"stored_size"`
	RefCount   uint32              `json:"ref_count"`
	Compressed bool                `json:"compressed"`
	CreatedAt  time.Time           `json:"created_at"`
	AccessedAt time.Time           `json:"accessed_at"`
}

func (m *ContentMeta) GetID() string {
	return string(m.Hash)
}

// Safe provides deduplicated content storage
type Safe struct {
	root   string                                  // Root directory for content files
	meta   *storage.BadgerStore                    // Metadata records
	cache  *lru.Cache[hashing.Fingerprint, []byte] // Content cache
	comp   *compressionManager
	logger *zap.Logger
}

// Options configures Safe behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of items to cache
	Compression CompressionOptions
	Logger      *zap.Logger
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	// Create content directory if it doesn't exist
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	// Use reasonable defaults
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.Compression.Level == 0 {
		opts.Compression = DefaultCompressionOptions()
	}
	if opts.Compression.StreamingThreshold == 0 {
		opts.Compression.StreamingThreshold = DefaultCompressionOptions().StreamingThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[hashing.Fingerprint, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	comp, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Safe{
		root:   opts.Root,
		meta:   storage.NewBadgerStore(db, "blob"),
		cache:  cache,
		comp:   comp,
		logger: opts.Logger,
	}, nil
}

// Store saves content and returns its fingerprint. Storing content that is
// already present only bumps its reference count.
func (s *Safe) Store(content []byte) (hashing.Fingerprint, error) {
	if content == nil {
		content = []byte{} // Convert nil to empty slice
	}

	hash := hashing.Bytes(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}

	if exists {
		if err := s.incrementRefCount(hash); err != nil {
			return "", fmt.Errorf("incrementing ref count: %w", err)
		}
		return hash, nil
	}

	stored, compressed, err := s.comp.compress(content)
	if err != nil {
		return "", fmt.Errorf("compressing content: %w", err)
	}

	contentPath := s.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}

	if err := utils.WriteFileAtomic(contentPath, stored, 0444); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	now := time.Now()
	meta := &ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  now,
		AccessedAt: now,
	}

	if err := s.meta.Create(meta); err != nil {
		// Cleanup on failure
		os.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, content)
	s.logger.Debug("stored blob",
		zap.String("hash", hash.String()),
		zap.Int64("size", meta.Size),
		zap.Bool("compressed", compressed))

	return hash, nil
}

// StoreFile stores the content of the file at path.
func (s *Safe) StoreFile(path string) (hashing.Fingerprint, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return s.Store(content)
}

// Get retrieves content by hash
func (s *Safe) Get(hash hashing.Fingerprint) ([]byte, error) {
	if !hash.Valid() {
		return nil, ErrInvalidHash
	}

	// Check cache first
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		content, err = s.comp.decompress(content)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if hashing.Bytes(content) != hash {
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, hash)
	}

	// Update cache and access time
	s.cache.Add(hash, content)
	meta.AccessedAt = time.Now()
	if err := s.meta.Put(meta); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}

	return content, nil
}

// Stat returns the metadata recorded for hash.
func (s *Safe) Stat(hash hashing.Fingerprint) (*ContentMeta, error) {
	if !hash.Valid() {
		return nil, ErrInvalidHash
	}
	return s.getMeta(hash)
}

// Exists checks if content exists
func (s *Safe) Exists(hash hashing.Fingerprint) (bool, error) {
	if !hash.Valid() {
		return false, ErrInvalidHash
	}

	if s.cache.Contains(hash) {
		return true, nil
	}

	return s.meta.Exists(string(hash))
}

// Verify re-reads content from disk and checks it against its hash.
func (s *Safe) Verify(hash hashing.Fingerprint) error {
	s.cache.Remove(hash)
	_, err := s.Get(hash)
	return err
}

// List returns the metadata of every stored blob, ordered by hash.
func (s *Safe) List() ([]ContentMeta, error) {
	var metas []ContentMeta
	if err := s.meta.List(&metas); err != nil {
		return nil, err
	}
	return metas, nil
}

func (s *Safe) Close() {
	s.comp.close()
}

// Internal helper functions

func (s *Safe) contentPath(hash hashing.Fingerprint) string {
	return filepath.Join(s.root, string(hash[:2]), string(hash[2:]))
}

func (s *Safe) incrementRefCount(hash hashing.Fingerprint) error {
	meta, err := s.getMeta(hash)
	if err != nil {
		return err
	}

	meta.RefCount++
	return s.meta.Update(meta)
}

func (s *Safe) getMeta(hash hashing.Fingerprint) (*ContentMeta, error) {
	var meta ContentMeta
	if err := s.meta.Get(string(hash), &meta); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return &meta, nil
}
