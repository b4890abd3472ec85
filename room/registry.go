package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/driftdrop/driftdrop/event"
)

// ErrRoomNotFound indicates no active room matches the given code or id.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomFull indicates the room is at its peer capacity.
var ErrRoomFull = errors.New("room is full")

// ErrRoomExpired indicates the room is past its 24-hour lifetime.
var ErrRoomExpired = errors.New("room has expired")

// ErrInvalidMaxPeers indicates a non-positive peer capacity.
var ErrInvalidMaxPeers = errors.New("max peers must be at least 1")

// IdentityProvider supplies the local peer identity. It is satisfied by
// *signaling.Coordinator.
type IdentityProvider interface {
	PeerID() string
}

// Registry is the single owner of the room and peer maps. All state lives in
// process memory; rooms are gone on restart by design.
type Registry struct {
	identity IdentityProvider
	sink     event.Sink

	mu    sync.RWMutex
	rooms map[string]*Room   // room id -> room
	codes map[string]string  // access code -> room id
	peers map[string][]*Peer // room id -> roster
	clock TimeProvider
}

// NewRegistry creates a registry. A nil sink discards events.
func NewRegistry(identity IdentityProvider, sink event.Sink) *Registry {
	if sink == nil {
		sink = event.Discard
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRegistry",
	}).Info("Room registry created")

	return &Registry{
		identity: identity,
		sink:     sink,
		rooms:    make(map[string]*Room),
		codes:    make(map[string]string),
		peers:    make(map[string][]*Peer),
		clock:    DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom clock for deterministic expiry testing.
func (r *Registry) SetTimeProvider(tp TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = tp
}

// CreateRoom creates a host-owned room with a unique 6-digit access code and
// a 24-hour expiry. The creating party starts with a peer count of zero;
// joins increment it.
func (r *Registry) CreateRoom(maxPeers int) (*Room, error) {
	if maxPeers < 1 {
		return nil, ErrInvalidMaxPeers
	}

	r.mu.Lock()

	code, err := r.uniqueCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	now := r.clock.Now()
	rm := &Room{
		ID:         uuid.New().String(),
		AccessCode: code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(TTL),
		IsHost:     true,
		PeerCount:  0,
		MaxPeers:   maxPeers,
	}
	r.rooms[rm.ID] = rm
	r.codes[code] = rm.ID
	r.peers[rm.ID] = []*Peer{{
		PeerID:    r.identity.PeerID(),
		RoomID:    rm.ID,
		Connected: true,
		JoinedAt:  now,
		LastSeen:  now,
	}}

	snapshot := *rm
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "CreateRoom",
		"room_id":     snapshot.ID,
		"access_code": snapshot.AccessCode,
		"max_peers":   maxPeers,
		"expires_at":  snapshot.ExpiresAt,
	}).Info("Room created")

	r.sink.Publish(event.New(event.RoomCreated, snapshot))
	return &snapshot, nil
}

// uniqueCodeLocked generates an access code unused by any active room,
// retrying on collision. Callers must hold the write lock.
func (r *Registry) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// JoinRoom looks a room up by access code and adds the local peer to it.
// Expired rooms are reaped on lookup.
func (r *Registry) JoinRoom(code string) (*Room, error) {
	r.mu.Lock()

	roomID, ok := r.codes[code]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	rm := r.rooms[roomID]

	if rm.Expired(r.clock.Now()) {
		r.dropRoomLocked(rm)
		r.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "JoinRoom",
			"room_id":  roomID,
		}).Warn("Join rejected: room expired")
		return nil, ErrRoomExpired
	}

	if rm.PeerCount >= rm.MaxPeers {
		r.mu.Unlock()
		return nil, ErrRoomFull
	}

	now := r.clock.Now()
	rm.PeerCount++
	r.peers[rm.ID] = append(r.peers[rm.ID], &Peer{
		PeerID:    r.identity.PeerID(),
		RoomID:    rm.ID,
		Connected: true,
		JoinedAt:  now,
		LastSeen:  now,
	})

	snapshot := *rm
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "JoinRoom",
		"room_id":    snapshot.ID,
		"peer_count": snapshot.PeerCount,
		"max_peers":  snapshot.MaxPeers,
	}).Info("Peer joined room")

	r.sink.Publish(event.New(event.RoomJoined, snapshot))
	return &snapshot, nil
}

// LeaveRoom removes the local peer from a room. The room is destroyed only
// when the last peer leaves.
func (r *Registry) LeaveRoom(roomID string) error {
	r.mu.Lock()

	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return ErrRoomNotFound
	}

	if rm.PeerCount > 0 {
		rm.PeerCount--
	}
	r.removePeerLocked(roomID, r.identity.PeerID())

	destroyed := rm.PeerCount == 0
	if destroyed {
		r.dropRoomLocked(rm)
	}

	snapshot := *rm
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "LeaveRoom",
		"room_id":    roomID,
		"peer_count": snapshot.PeerCount,
		"destroyed":  destroyed,
	}).Info("Peer left room")

	r.sink.Publish(event.New(event.RoomLeft, snapshot))
	return nil
}

// GetRoom returns a snapshot of an active room by id, reaping it when
// expired. The transfer manager uses this to validate rooms before
// registering transfers.
func (r *Registry) GetRoom(roomID string) (*Room, error) {
	r.mu.Lock()

	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	if rm.Expired(r.clock.Now()) {
		r.dropRoomLocked(rm)
		r.mu.Unlock()
		return nil, ErrRoomExpired
	}

	snapshot := *rm
	r.mu.Unlock()
	return &snapshot, nil
}

// Peers returns a snapshot of the roster for a room.
func (r *Registry) Peers(roomID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]Peer, 0, len(r.peers[roomID]))
	for _, p := range r.peers[roomID] {
		roster = append(roster, *p)
	}
	return roster
}

// ActiveRooms returns the number of rooms currently registered.
func (r *Registry) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// dropRoomLocked removes a room, its code mapping and its roster. Callers
// must hold the write lock.
func (r *Registry) dropRoomLocked(rm *Room) {
	delete(r.rooms, rm.ID)
	delete(r.codes, rm.AccessCode)
	delete(r.peers, rm.ID)
}

// removePeerLocked drops one roster entry by peer id. Callers must hold the
// write lock.
func (r *Registry) removePeerLocked(roomID, peerID string) {
	roster := r.peers[roomID]
	for i, p := range roster {
		if p.PeerID == peerID {
			r.peers[roomID] = append(roster[:i], roster[i+1:]...)
			return
		}
	}
}

// String renders a short diagnostic description of the registry.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("room.Registry{rooms: %d}", len(r.rooms))
}
