// Package checksum computes whole-file SHA-256 digests for end-to-end
// integrity verification.
//
// The digest is independent of the per-chunk AEAD tags: it is computed over
// the complete file before a transfer starts and again after it finishes, so
// corruption introduced anywhere in the pipeline is always detected.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ErrChecksumMismatch indicates that a file's digest does not match the
// expected value.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// readBufferSize is the fixed buffer used for streaming reads.
const readBufferSize = 32 * 1024

// Reader computes the hex-encoded SHA-256 digest of everything readable
// from r, streaming with a small fixed buffer.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, readBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hash file %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "File",
		"path":     path,
		"checksum": sum,
	}).Debug("Computed file checksum")

	return sum, nil
}

// VerifyFile recomputes the digest of the file at path and compares it with
// want. It returns ErrChecksumMismatch when the digests differ.
func VerifyFile(path, want string) error {
	got, err := File(path)
	if err != nil {
		return err
	}
	if got != want {
		logrus.WithFields(logrus.Fields{
			"function": "VerifyFile",
			"path":     path,
			"want":     want,
			"got":      got,
		}).Warn("File checksum verification failed")
		return fmt.Errorf("%w: want %s got %s", ErrChecksumMismatch, want, got)
	}
	return nil
}
