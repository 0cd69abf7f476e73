// Package hashing computes content fingerprints for file content and
// commit records.
package hashing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"pgit/internal/errors"
)

// chunkSize bounds how much of a file is held in memory while hashing.
const chunkSize = 4096

// Size is the length of a hex-encoded fingerprint.
const Size = sha1.Size * 2

// Fingerprint is the lowercase hex SHA-1 digest of a byte sequence.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 7 characters, for display.
func (f Fingerprint) Short() string {
	if len(f) < 7 {
		return string(f)
	}
	return string(f[:7])
}

// Valid reports whether f has the shape of a fingerprint.
func (f Fingerprint) Valid() bool {
	if len(f) != Size {
		return false
	}
	for _, c := range f {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Parse validates s and returns it as a Fingerprint.
func Parse(s string) (Fingerprint, error) {
	f := Fingerprint(s)
	if !f.Valid() {
		return "", errors.Validation(fmt.Sprintf("invalid fingerprint %q", s))
	}
	return f, nil
}

// Bytes fingerprints an in-memory byte slice.
func Bytes(content []byte) Fingerprint {
	sum := sha1.Sum(content)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Reader fingerprints everything readable from r.
func Reader(r io.Reader) (Fingerprint, error) {
	h := sha1.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// File fingerprints the file at path. Failures are reported as ReadFailure.
func File(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.ReadFailure(path, err)
	}
	defer f.Close()

	fp, err := Reader(f)
	if err != nil {
		return "", errors.ReadFailure(path, err)
	}
	return fp, nil
}
