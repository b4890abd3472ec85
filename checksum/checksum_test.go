package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReaderKnownVector(t *testing.T) {
	// SHA-256 of the empty string is a fixed, well-known value.
	sum, err := Reader(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if sum != want {
		t.Errorf("empty digest = %s, want %s", sum, want)
	}
}

func TestFileDeterministic(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "data.bin")
	data := bytes.Repeat([]byte("driftdrop"), 10000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	first, err := File(path)
	if err != nil {
		t.Fatalf("first hash failed: %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("second hash failed: %v", err)
	}
	if first != second {
		t.Errorf("same file hashed twice gave %s and %s", first, second)
	}

	ref := sha256.Sum256(data)
	if first != hex.EncodeToString(ref[:]) {
		t.Errorf("streamed digest %s does not match reference %x", first, ref)
	}
}

func TestFileMutationChangesDigest(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "data.bin")
	data := bytes.Repeat([]byte{0xAB}, 4096)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	before, err := File(path)
	if err != nil {
		t.Fatalf("hash before mutation: %v", err)
	}

	data[2048] ^= 0x01
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite test file: %v", err)
	}

	after, err := File(path)
	if err != nil {
		t.Fatalf("hash after mutation: %v", err)
	}
	if before == after {
		t.Error("single-byte mutation did not change the digest")
	}
}

func TestVerifyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "data.bin")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	sum, err := File(path)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if err := VerifyFile(path, sum); err != nil {
		t.Errorf("VerifyFile with matching digest failed: %v", err)
	}

	err = VerifyFile(path, "00"+sum[2:])
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyFile with wrong digest = %v, want ErrChecksumMismatch", err)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "absent.bin")); err == nil {
		t.Error("hashing a missing file should fail")
	}
}
