package signaling

// Message is the JSON envelope exchanged with the signaling server. Payload
// content is opaque to the coordinator; handshake messages and transfer
// announcements ride in it base64- or JSON-encoded by the caller.
type Message struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoin      = "join"
	MessageTypeLeave     = "leave"
	MessageTypeHandshake = "handshake"
	MessageTypeOffer     = "offer"
	MessageTypeError     = "error"
)
