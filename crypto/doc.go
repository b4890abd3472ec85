// Package crypto implements the cryptographic primitives of the transfer
// core: per-chunk authenticated encryption, X25519 key pairs, and the
// Noise XX key agreement used to establish a shared chunk key between peers.
//
// Chunk framing on the wire is always [12-byte nonce][ciphertext‖16-byte tag].
// A fresh random nonce is generated for every chunk and never reused.
//
// Example:
//
//	key, err := crypto.GenerateSessionKey()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cipher, _ := crypto.NewChunkCipher(key)
//	frame, _ := cipher.EncryptChunk(plaintext)
//	plain, _ := cipher.DecryptChunk(frame)
package crypto
