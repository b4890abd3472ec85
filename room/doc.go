// Package room implements room-based rendezvous: creation, join and leave of
// time-bounded rooms identified by short numeric access codes.
//
// The Registry is the single owner of the room and peer maps. Access codes
// are exactly six ASCII digits, unique among active rooms, and regenerated on
// collision. Rooms expire 24 hours after creation; expiry is checked lazily
// on lookup rather than actively swept.
package room
