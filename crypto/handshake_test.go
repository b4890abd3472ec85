package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// runHandshake drives a complete XX exchange between two in-process parties
// and returns both completed handshakes.
func runHandshake(t *testing.T) (*Handshake, *Handshake) {
	t.Helper()

	initiator, err := NewHandshake(Initiator, nil)
	if err != nil {
		t.Fatalf("create initiator: %v", err)
	}
	responder, err := NewHandshake(Responder, nil)
	if err != nil {
		t.Fatalf("create responder: %v", err)
	}

	// -> e
	msg1, err := initiator.WriteMessage()
	if err != nil {
		t.Fatalf("initiator message 1: %v", err)
	}
	if err := responder.ReadMessage(msg1); err != nil {
		t.Fatalf("responder read message 1: %v", err)
	}

	// <- e, ee, s, es
	msg2, err := responder.WriteMessage()
	if err != nil {
		t.Fatalf("responder message 2: %v", err)
	}
	if err := initiator.ReadMessage(msg2); err != nil {
		t.Fatalf("initiator read message 2: %v", err)
	}

	// -> s, se
	msg3, err := initiator.WriteMessage()
	if err != nil {
		t.Fatalf("initiator message 3: %v", err)
	}
	if err := responder.ReadMessage(msg3); err != nil {
		t.Fatalf("responder read message 3: %v", err)
	}

	if !initiator.Complete() || !responder.Complete() {
		t.Fatal("handshake did not complete on both sides")
	}

	return initiator, responder
}

func TestHandshakeKeyAgreement(t *testing.T) {
	initiator, responder := runHandshake(t)

	roomID := "7f6c1d2e-room"
	initiatorKey, err := initiator.SessionKey(roomID)
	if err != nil {
		t.Fatalf("initiator SessionKey failed: %v", err)
	}
	responderKey, err := responder.SessionKey(roomID)
	if err != nil {
		t.Fatalf("responder SessionKey failed: %v", err)
	}

	if initiatorKey != responderKey {
		t.Error("peers derived different session keys")
	}

	otherRoomKey, err := initiator.SessionKey("another-room")
	if err != nil {
		t.Fatalf("SessionKey for second room failed: %v", err)
	}
	if otherRoomKey == initiatorKey {
		t.Error("different rooms should derive different keys")
	}
}

func TestHandshakeCiphersInteroperate(t *testing.T) {
	initiator, responder := runHandshake(t)

	initiatorKey, err := initiator.SessionKey("room")
	if err != nil {
		t.Fatalf("initiator SessionKey failed: %v", err)
	}
	responderKey, err := responder.SessionKey("room")
	if err != nil {
		t.Fatalf("responder SessionKey failed: %v", err)
	}

	sendCipher, err := NewChunkCipher(initiatorKey)
	if err != nil {
		t.Fatalf("NewChunkCipher (sender) failed: %v", err)
	}
	recvCipher, err := NewChunkCipher(responderKey)
	if err != nil {
		t.Fatalf("NewChunkCipher (receiver) failed: %v", err)
	}

	plaintext := []byte("chunk sealed by one peer, opened by the other")
	frame, err := sendCipher.EncryptChunk(plaintext)
	if err != nil {
		t.Fatalf("EncryptChunk failed: %v", err)
	}

	decrypted, err := recvCipher.DecryptChunk(frame)
	if err != nil {
		t.Fatalf("DecryptChunk failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("cross-peer round-trip does not match")
	}
}

func TestHandshakeIncomplete(t *testing.T) {
	initiator, err := NewHandshake(Initiator, nil)
	if err != nil {
		t.Fatalf("create initiator: %v", err)
	}

	if initiator.Complete() {
		t.Error("fresh handshake reports complete")
	}

	if _, err := initiator.SessionKey("room"); !errors.Is(err, ErrHandshakeNotComplete) {
		t.Errorf("SessionKey before completion = %v, want ErrHandshakeNotComplete", err)
	}

	if _, err := initiator.PeerStatic(); !errors.Is(err, ErrHandshakeNotComplete) {
		t.Errorf("PeerStatic before completion = %v, want ErrHandshakeNotComplete", err)
	}
}

func TestHandshakeAlreadyComplete(t *testing.T) {
	initiator, responder := runHandshake(t)

	if _, err := initiator.WriteMessage(); !errors.Is(err, ErrHandshakeComplete) {
		t.Errorf("WriteMessage after completion = %v, want ErrHandshakeComplete", err)
	}
	if err := responder.ReadMessage([]byte{0x00}); !errors.Is(err, ErrHandshakeComplete) {
		t.Errorf("ReadMessage after completion = %v, want ErrHandshakeComplete", err)
	}
}

func TestHandshakeLearnsPeerStatic(t *testing.T) {
	static, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	initiator, err := NewHandshake(Initiator, nil)
	if err != nil {
		t.Fatalf("create initiator: %v", err)
	}
	responder, err := NewHandshake(Responder, static)
	if err != nil {
		t.Fatalf("create responder: %v", err)
	}

	msg1, err := initiator.WriteMessage()
	if err != nil {
		t.Fatalf("initiator message 1: %v", err)
	}
	if err := responder.ReadMessage(msg1); err != nil {
		t.Fatalf("responder read message 1: %v", err)
	}
	msg2, err := responder.WriteMessage()
	if err != nil {
		t.Fatalf("responder message 2: %v", err)
	}
	if err := initiator.ReadMessage(msg2); err != nil {
		t.Fatalf("initiator read message 2: %v", err)
	}
	msg3, err := initiator.WriteMessage()
	if err != nil {
		t.Fatalf("initiator message 3: %v", err)
	}
	if err := responder.ReadMessage(msg3); err != nil {
		t.Fatalf("responder read message 3: %v", err)
	}

	peerKey, err := initiator.PeerStatic()
	if err != nil {
		t.Fatalf("PeerStatic failed: %v", err)
	}
	if !bytes.Equal(peerKey, static.Public[:]) {
		t.Error("initiator learned a different static key than the responder used")
	}
}

func TestKeyPairDerivation(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	rebuilt, err := FromPrivateKey(kp.Private)
	if err != nil {
		t.Fatalf("FromPrivateKey failed: %v", err)
	}
	if rebuilt.Public != kp.Public {
		t.Error("rebuilt public key does not match original")
	}

	if _, err := FromPrivateKey([32]byte{}); err == nil {
		t.Error("all-zero private key should be rejected")
	}
}
