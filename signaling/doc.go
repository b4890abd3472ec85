// Package signaling manages connectivity to the signaling endpoint used for
// rendezvous and connection setup.
//
// The Coordinator owns a process-lifetime peer identity, drives the
// Disconnected→Connecting→Connected state machine over a WebSocket
// connection, relays JSON signaling messages, and hands the ordered
// STUN/TURN server list to the transport layer as pion webrtc configuration.
// ICE candidates themselves are never interpreted here.
package signaling
