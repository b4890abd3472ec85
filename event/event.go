// Package event defines the notification surface between the transfer core
// and the presentation layer.
//
// Every lifecycle change in a room or transfer is published to a Sink as an
// Event whose payload is a full snapshot of the affected object, so consumers
// never share mutable state with the core.
package event

import "time"

// Type identifies the kind of lifecycle event being published.
type Type string

const (
	RoomCreated Type = "room-created"
	RoomJoined  Type = "room-joined"
	RoomLeft    Type = "room-left"

	TransferCreated   Type = "transfer-created"
	TransferProgress  Type = "transfer-progress"
	TransferCompleted Type = "transfer-completed"
	TransferFailed    Type = "transfer-failed"
	TransferCancelled Type = "transfer-cancelled"
)

// Event carries a lifecycle notification. Payload is a value snapshot of the
// Room or Transfer the event refers to, taken while the owning lock was held.
type Event struct {
	Type      Type
	Payload   any
	Timestamp time.Time
}

// Sink receives lifecycle and progress events for presentation.
// Implementations must not block; slow consumers should buffer internally.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish implements Sink for SinkFunc.
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// New builds an Event stamped with the current time.
func New(t Type, payload any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now()}
}
