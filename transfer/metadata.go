package transfer

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftdrop/driftdrop/checksum"
)

// ChunkSize is the fixed chunk length in bytes. The final chunk of a file
// may be shorter; chunks travel strictly in order.
const ChunkSize = 1024 * 1024

// defaultMimeType is used when the file extension maps to nothing.
const defaultMimeType = "application/octet-stream"

// FileMetadata describes the file being transferred. The checksum is
// computed on the sending side before the first chunk moves and verified
// again when the transfer finishes.
type FileMetadata struct {
	Name     string `json:"name"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type"`
	Chunks   uint64 `json:"chunks"`
	Checksum string `json:"checksum"`
}

// BuildFileMetadata stats and hashes the file at path and derives the chunk
// count and MIME type.
func BuildFileMetadata(path string) (FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return FileMetadata{}, fmt.Errorf("source %s is not a regular file", path)
	}

	sum, err := checksum.File(path)
	if err != nil {
		return FileMetadata{}, err
	}

	size := uint64(info.Size())
	return FileMetadata{
		Name:     filepath.Base(path),
		Size:     size,
		MimeType: mimeTypeFor(path),
		Chunks:   chunkCount(size),
		Checksum: sum,
	}, nil
}

// chunkCount returns ceil(size / ChunkSize).
func chunkCount(size uint64) uint64 {
	return (size + ChunkSize - 1) / ChunkSize
}

// mimeTypeFor derives a MIME type from the file extension, without any
// charset parameters, defaulting to a generic binary type.
func mimeTypeFor(path string) string {
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		return defaultMimeType
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
