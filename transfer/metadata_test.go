package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdrop/driftdrop/checksum"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuildFileMetadata(t *testing.T) {
	// 2.5 MiB must slice into 3 chunks.
	data := bytes.Repeat([]byte{0x5A}, 2621440)
	path := writeTempFile(t, "archive.bin", data)

	meta, err := BuildFileMetadata(path)
	require.NoError(t, err)

	assert.Equal(t, "archive.bin", meta.Name)
	assert.Equal(t, uint64(2621440), meta.Size)
	assert.Equal(t, uint64(3), meta.Chunks)
	assert.Equal(t, "application/octet-stream", meta.MimeType)

	want, err := checksum.File(path)
	require.NoError(t, err)
	assert.Equal(t, want, meta.Checksum)
}

func TestBuildFileMetadataMimeFromExtension(t *testing.T) {
	path := writeTempFile(t, "notes.json", []byte(`{"a":1}`))

	meta, err := BuildFileMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "application/json", meta.MimeType)
}

func TestBuildFileMetadataErrors(t *testing.T) {
	_, err := BuildFileMetadata(filepath.Join(t.TempDir(), "absent.bin"))
	assert.Error(t, err)

	// Directories are not transferable.
	_, err = BuildFileMetadata(t.TempDir())
	assert.Error(t, err)
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		name string
		size uint64
		want uint64
	}{
		{name: "empty file", size: 0, want: 0},
		{name: "one byte", size: 1, want: 1},
		{name: "just under one chunk", size: ChunkSize - 1, want: 1},
		{name: "exactly one chunk", size: ChunkSize, want: 1},
		{name: "one chunk plus a byte", size: ChunkSize + 1, want: 2},
		{name: "two and a half chunks", size: 2621440, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkCount(tt.size))
		})
	}
}
