package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake already finished.
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// HandshakeRole defines whether we initiate or respond to the key agreement.
type HandshakeRole uint8

const (
	// Initiator starts the handshake. In a room this is the host.
	Initiator HandshakeRole = iota
	// Responder answers a handshake started by the peer.
	Responder
)

// chunkKeyInfo is the HKDF info string binding derived keys to this protocol.
var chunkKeyInfo = []byte("driftdrop chunk key v1")

// Handshake runs a Noise XX key agreement between two peers. The handshake
// messages are relayed over the signaling channel; neither peer needs to know
// the other's static key in advance, which is what makes XX (rather than IK)
// the right pattern for code-based rendezvous.
//
// After completion both sides hold an identical channel binding from which
// SessionKey derives the 256-bit chunk key.
type Handshake struct {
	role     HandshakeRole
	state    *noise.HandshakeState
	complete bool
}

// NewHandshake creates an XX handshake using static as our long-term key.
// A nil static key pair generates a fresh one.
func NewHandshake(role HandshakeRole, static *KeyPair) (*Handshake, error) {
	if static == nil {
		var err error
		static, err = GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate static key: %w", err)
		}
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, static.Private[:])
	copy(staticKey.Public, static.Public[:])

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewHandshake",
		"role":     role,
	}).Debug("Noise XX handshake state created")

	return &Handshake{role: role, state: state}, nil
}

// WriteMessage produces the next outbound handshake message.
func (h *Handshake) WriteMessage() ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	message, cs1, cs2, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("write handshake message: %w", err)
	}

	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	return message, nil
}

// ReadMessage consumes an inbound handshake message from the peer.
func (h *Handshake) ReadMessage(message []byte) error {
	if h.complete {
		return ErrHandshakeComplete
	}

	_, cs1, cs2, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return fmt.Errorf("read handshake message: %w", err)
	}

	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	return nil
}

// Complete reports whether the handshake has finished and a session key can
// be derived.
func (h *Handshake) Complete() bool {
	return h.complete
}

// PeerStatic returns the peer's static public key learned during the
// handshake.
func (h *Handshake) PeerStatic() ([]byte, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}

	remote := h.state.PeerStatic()
	if len(remote) == 0 {
		return nil, errors.New("peer static key not available")
	}
	key := make([]byte, len(remote))
	copy(key, remote)
	return key, nil
}

// SessionKey derives the 256-bit chunk key for a room from the handshake's
// channel binding. Both peers derive the same key; different rooms derive
// different keys because the room id salts the derivation.
func (h *Handshake) SessionKey(roomID string) ([KeySize]byte, error) {
	if !h.complete {
		return [KeySize]byte{}, ErrHandshakeNotComplete
	}

	binding := h.state.ChannelBinding()
	if len(binding) == 0 {
		return [KeySize]byte{}, errors.New("channel binding not available")
	}

	var key [KeySize]byte
	kdf := hkdf.New(sha256.New, binding, []byte(roomID), chunkKeyInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return [KeySize]byte{}, fmt.Errorf("derive session key: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SessionKey",
		"role":     h.role,
		"room_id":  roomID,
	}).Debug("Session key derived from handshake")

	return key, nil
}
