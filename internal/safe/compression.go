// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
	// Content larger than this is compressed through the streaming encoder
	StreamingThreshold int64
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize:            1024,             // 1KB
		Level:              2,                // Balanced speed/compression
		StreamingThreshold: 50 * 1024 * 1024, // 50MB
	}
}

// compressionManager handles compression operations
type compressionManager struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	if opts.Level < int(zstd.SpeedFastest) || opts.Level > int(zstd.SpeedBestCompression) {
		return nil, fmt.Errorf("unsupported compression level %d", opts.Level)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevel(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &compressionManager{opts: opts, enc: enc, dec: dec}, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(size int) bool {
	return cm.opts.MinSize >= 0 && size >= cm.opts.MinSize
}

// compress returns the compressed form of content and whether it was
// compressed at all.
func (cm *compressionManager) compress(content []byte) ([]byte, bool, error) {
	if !cm.shouldCompress(len(content)) {
		return content, false, nil
	}

	if int64(len(content)) > cm.opts.StreamingThreshold {
		out, err := cm.compressStream(content)
		return out, err == nil, err
	}

	return cm.enc.EncodeAll(content, nil), true, nil
}

// compressStream handles large content compression
func (cm *compressionManager) compressStream(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf,
		zstd.WithEncoderLevel(zstd.EncoderLevel(cm.opts.Level)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream encoder: %w", err)
	}

	if _, err := io.Copy(enc, bytes.NewReader(content)); err != nil {
		enc.Close()
		return nil, fmt.Errorf("streaming compression: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing compression: %w", err)
	}

	return buf.Bytes(), nil
}

// decompress decompresses content
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	// Check if content is actually compressed
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return content, nil
	}

	if int64(len(content)) > cm.opts.StreamingThreshold {
		return cm.decompressStream(content)
	}
	return cm.dec.DecodeAll(content, nil)
}

// decompressStream handles large content decompression
func (cm *compressionManager) decompressStream(content []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("creating stream decoder: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return nil, fmt.Errorf("streaming decompression: %w", err)
	}

	return buf.Bytes(), nil
}

// close cleans up resources
func (cm *compressionManager) close() {
	cm.enc.Close()
	cm.dec.Close()
}
