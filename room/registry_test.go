package room

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdrop/driftdrop/event"
)

type staticIdentity string

func (s staticIdentity) PeerID() string { return string(s) }

// fakeClock is a settable TimeProvider.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

// recordingSink captures published events in order.
type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Publish(e event.Event) {
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []event.Type {
	out := make([]event.Type, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestRegistry() (*Registry, *recordingSink) {
	sink := &recordingSink{}
	return NewRegistry(staticIdentity("peer-local"), sink), sink
}

func TestCreateRoom(t *testing.T) {
	reg, sink := newTestRegistry()

	rm, err := reg.CreateRoom(2)
	require.NoError(t, err)

	assert.NotEmpty(t, rm.ID)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), rm.AccessCode)
	assert.True(t, rm.IsHost)
	assert.Equal(t, 0, rm.PeerCount)
	assert.Equal(t, 2, rm.MaxPeers)
	assert.Equal(t, TTL, rm.ExpiresAt.Sub(rm.CreatedAt))

	require.Len(t, sink.events, 1)
	assert.Equal(t, event.RoomCreated, sink.events[0].Type)
	snapshot, ok := sink.events[0].Payload.(Room)
	require.True(t, ok, "payload should be a Room snapshot")
	assert.Equal(t, rm.ID, snapshot.ID)
}

func TestCreateRoomInvalidCapacity(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.CreateRoom(0)
	assert.ErrorIs(t, err, ErrInvalidMaxPeers)
}

func TestAccessCodesPairwiseDistinct(t *testing.T) {
	reg, _ := newTestRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rm, err := reg.CreateRoom(4)
		require.NoError(t, err)
		assert.False(t, seen[rm.AccessCode], "duplicate access code %s", rm.AccessCode)
		seen[rm.AccessCode] = true
	}
	assert.Equal(t, 100, reg.ActiveRooms())
}

func TestJoinRoom(t *testing.T) {
	reg, sink := newTestRegistry()

	created, err := reg.CreateRoom(2)
	require.NoError(t, err)

	joined, err := reg.JoinRoom(created.AccessCode)
	require.NoError(t, err)

	assert.Equal(t, created.ID, joined.ID)
	assert.Equal(t, 1, joined.PeerCount)
	assert.Equal(t, []event.Type{event.RoomCreated, event.RoomJoined}, sink.types())
}

func TestJoinRoomErrors(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.JoinRoom("000000")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	rm, err := reg.CreateRoom(1)
	require.NoError(t, err)

	_, err = reg.JoinRoom(rm.AccessCode)
	require.NoError(t, err)

	// Room is at capacity now.
	_, err = reg.JoinRoom(rm.AccessCode)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRoomExpired(t *testing.T) {
	reg, _ := newTestRegistry()
	clock := &fakeClock{now: time.Now()}
	reg.SetTimeProvider(clock)

	rm, err := reg.CreateRoom(2)
	require.NoError(t, err)

	clock.now = clock.now.Add(TTL + time.Minute)

	_, err = reg.JoinRoom(rm.AccessCode)
	assert.ErrorIs(t, err, ErrRoomExpired)

	// Expired rooms are reaped lazily on lookup.
	_, err = reg.JoinRoom(rm.AccessCode)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, 0, reg.ActiveRooms())
}

func TestLeaveRoomKeepsOccupiedRoom(t *testing.T) {
	reg, _ := newTestRegistry()

	rm, err := reg.CreateRoom(3)
	require.NoError(t, err)

	_, err = reg.JoinRoom(rm.AccessCode)
	require.NoError(t, err)
	_, err = reg.JoinRoom(rm.AccessCode)
	require.NoError(t, err)

	// Two peers joined; one leaving must not destroy the room.
	require.NoError(t, reg.LeaveRoom(rm.ID))
	got, err := reg.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PeerCount)

	// Last peer leaving destroys the room.
	require.NoError(t, reg.LeaveRoom(rm.ID))
	_, err = reg.GetRoom(rm.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestLeaveRoomUnknown(t *testing.T) {
	reg, _ := newTestRegistry()
	assert.ErrorIs(t, reg.LeaveRoom("missing"), ErrRoomNotFound)
}

func TestCodeReleasedAfterDestroy(t *testing.T) {
	reg, _ := newTestRegistry()

	rm, err := reg.CreateRoom(2)
	require.NoError(t, err)
	code := rm.AccessCode

	require.NoError(t, reg.LeaveRoom(rm.ID))

	_, err = reg.JoinRoom(code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoster(t *testing.T) {
	reg, _ := newTestRegistry()

	rm, err := reg.CreateRoom(2)
	require.NoError(t, err)

	roster := reg.Peers(rm.ID)
	require.Len(t, roster, 1)
	assert.Equal(t, "peer-local", roster[0].PeerID)
	assert.Equal(t, rm.ID, roster[0].RoomID)
	assert.True(t, roster[0].Connected)
}

func TestGetRoomExpiredReaped(t *testing.T) {
	reg, _ := newTestRegistry()
	clock := &fakeClock{now: time.Now()}
	reg.SetTimeProvider(clock)

	rm, err := reg.CreateRoom(2)
	require.NoError(t, err)

	clock.now = clock.now.Add(TTL + time.Second)

	_, err = reg.GetRoom(rm.ID)
	assert.ErrorIs(t, err, ErrRoomExpired)

	_, err = reg.GetRoom(rm.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
