package transfer

import (
	"context"
	"sync"

	"github.com/driftdrop/driftdrop/crypto"
	"github.com/driftdrop/driftdrop/event"
	"github.com/driftdrop/driftdrop/room"
)

// stubRooms is a RoomValidator returning a fixed room or error.
type stubRooms struct {
	err error
}

func (s *stubRooms) GetRoom(roomID string) (*room.Room, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &room.Room{ID: roomID, MaxPeers: 2, PeerCount: 1}, nil
}

// staticCiphers serves the same cipher for every room.
func staticCiphers(c *crypto.ChunkCipher) CipherProvider {
	return CipherProviderFunc(func(string) (*crypto.ChunkCipher, error) {
		return c, nil
	})
}

// mockTransport records every frame it is handed. An optional gate makes
// each send block until released, and an optional hook runs per call.
type mockTransport struct {
	mu     sync.Mutex
	frames [][]byte
	gate   chan struct{}
	onSend func(call int, frame []byte) error
}

func (mt *mockTransport) SendChunk(ctx context.Context, transferID string, frame []byte) error {
	if mt.gate != nil {
		select {
		case <-mt.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	mt.mu.Lock()
	call := len(mt.frames)
	mt.frames = append(mt.frames, append([]byte(nil), frame...))
	hook := mt.onSend
	mt.mu.Unlock()

	if hook != nil {
		return hook(call, frame)
	}
	return nil
}

func (mt *mockTransport) sentFrames() [][]byte {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	out := make([][]byte, len(mt.frames))
	copy(out, mt.frames)
	return out
}

// recordingSink captures events thread-safely and exposes them on a channel
// for tests that wait on background loops.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	ch     chan event.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan event.Event, 256)}
}

func (s *recordingSink) Publish(e event.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.ch <- e
}

func (s *recordingSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}
