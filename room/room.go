package room

import "time"

// TTL is how long a room stays joinable after creation.
const TTL = 24 * time.Hour

// Room is a time-bounded rendezvous context binding a capped set of peers to
// one P2P session. Values handed out by the Registry are snapshots; the
// Registry keeps the only mutable copy.
type Room struct {
	ID         string    `json:"id"`
	AccessCode string    `json:"access_code"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsHost     bool      `json:"is_host"`
	PeerCount  int       `json:"peer_count"`
	MaxPeers   int       `json:"max_peers"`
}

// Expired reports whether the room is past its expiry at the given instant.
func (r *Room) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Peer is a lightweight roster entry scoped to a room. Transfers do not
// route through peers; the roster exists for presence bookkeeping.
type Peer struct {
	PeerID    string    `json:"peer_id"`
	RoomID    string    `json:"room_id"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }
