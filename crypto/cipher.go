package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the AEAD key length in bytes (AES-256).
const KeySize = 32

// NonceSize is the per-chunk nonce length in bytes (96 bits).
const NonceSize = 12

// TagSize is the GCM authentication tag length in bytes (128 bits).
const TagSize = 16

// ErrEncryptionFailed indicates that a chunk could not be encrypted.
var ErrEncryptionFailed = errors.New("chunk encryption failed")

// ErrDecryptionFailed indicates that a framed chunk could not be
// authenticated and decrypted. This covers tampered data, a wrong session
// key, and inputs shorter than the nonce prefix.
var ErrDecryptionFailed = errors.New("chunk decryption failed")

// ChunkCipher performs authenticated encryption of individual file chunks
// under a 256-bit session key. It is safe for concurrent use: the underlying
// AEAD is stateless and every call draws its own nonce.
type ChunkCipher struct {
	aead cipher.AEAD
}

// NewChunkCipher creates a ChunkCipher from a 256-bit session key.
func NewChunkCipher(key [KeySize]byte) (*ChunkCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &ChunkCipher{aead: aead}, nil
}

// EncryptChunk encrypts plaintext with a fresh random 96-bit nonce and
// returns the framed bytes: [nonce][ciphertext‖tag]. Empty plaintext is
// valid and round-trips to an empty chunk.
func (c *ChunkCipher) EncryptChunk(plaintext []byte) ([]byte, error) {
	frame := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(frame[:NonceSize]); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrEncryptionFailed, err)
	}

	frame = c.aead.Seal(frame, frame[:NonceSize], plaintext, nil)
	return frame, nil
}

// DecryptChunk splits the 12-byte nonce prefix from frame, authenticates the
// remainder and returns the plaintext. It returns ErrDecryptionFailed when
// the frame is too short or the authentication tag does not verify.
func (c *ChunkCipher) DecryptChunk(frame []byte) ([]byte, error) {
	if len(frame) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrDecryptionFailed, len(frame))
	}

	plaintext, err := c.aead.Open(nil, frame[:NonceSize], frame[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// GenerateSessionKey creates a random 256-bit session key. It is used for
// loopback and testing; peer-to-peer sessions derive their key through the
// Handshake instead.
func GenerateSessionKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return [KeySize]byte{}, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}
