package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// State represents the coordinator's connection state.
type State uint8

const (
	// StateDisconnected is the initial state; also re-entered after Disconnect.
	StateDisconnected State = iota
	// StateConnecting means a dial to the signaling endpoint is in progress.
	StateConnecting
	// StateConnected means the WebSocket session is established.
	StateConnected
	// StateError means the last connection attempt or session failed.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrConnectionFailed indicates the signaling endpoint could not be reached.
var ErrConnectionFailed = errors.New("signaling connection failed")

// ErrNotConnected indicates an operation that requires an established
// signaling session was attempted without one.
var ErrNotConnected = errors.New("not connected to signaling endpoint")

// Coordinator manages the connection to the signaling endpoint, the local
// peer identity, and the ICE server bundle handed to the transport layer.
// One Coordinator exists per running client; the peer identity is generated
// once and lives for the lifetime of the process.
type Coordinator struct {
	serverURL  string
	peerID     string
	iceServers []webrtc.ICEServer

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan *Message
	done     chan struct{}
}

// NewCoordinator creates a coordinator for the given signaling endpoint.
// STUN entries precede TURN entries in the resulting ICE server list.
func NewCoordinator(serverURL string, stunURLs []string, turnServers []TURNServer) *Coordinator {
	c := &Coordinator{
		serverURL:  serverURL,
		peerID:     uuid.New().String(),
		iceServers: buildICEServers(stunURLs, turnServers),
		state:      StateDisconnected,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewCoordinator",
		"server_url": serverURL,
		"peer_id":    c.peerID,
		"ice_count":  len(c.iceServers),
	}).Info("Signaling coordinator created")

	return c
}

// PeerID returns the process-lifetime local peer identifier.
func (c *Coordinator) PeerID() string {
	return c.peerID
}

// State returns the current connection state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ICEServers returns a copy of the ordered ICE server list.
func (c *Coordinator) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, len(c.iceServers))
	copy(servers, c.iceServers)
	return servers
}

// WebRTCConfiguration returns the configuration surface consumed by the
// transport layer.
func (c *Coordinator) WebRTCConfiguration() webrtc.Configuration {
	return webrtc.Configuration{ICEServers: c.ICEServers()}
}

// Connect dials the signaling endpoint and starts the read/write pumps.
// It drives the state machine Disconnected→Connecting→Connected, or →Error
// when the dial fails.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return fmt.Errorf("connect: already %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Connect",
		"server_url": c.serverURL,
		"peer_id":    c.peerID,
	}).Info("Connecting to signaling endpoint")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":   "Connect",
			"server_url": c.serverURL,
			"error":      err.Error(),
		}).Error("Signaling dial failed")
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.incoming = make(chan *Message, 16)
	c.outgoing = make(chan *Message, 16)
	c.done = make(chan struct{})
	c.state = StateConnected
	c.mu.Unlock()

	go c.readPump(conn, c.incoming, c.done)
	go c.writePump(conn, c.outgoing, c.done)

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"peer_id":  c.peerID,
	}).Info("Signaling session established")

	return nil
}

// Disconnect closes the signaling session and resets the state to
// Disconnected. It is safe to call multiple times.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.state = StateDisconnected
		return
	}

	close(c.done)
	c.state = StateDisconnected
	c.conn = nil

	logrus.WithFields(logrus.Fields{
		"function": "Disconnect",
		"peer_id":  c.peerID,
	}).Info("Signaling session closed")
}

// Send queues a message for delivery to the signaling endpoint. The local
// peer identity is stamped on the message when From is empty.
func (c *Coordinator) Send(msg *Message) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	outgoing, done := c.outgoing, c.done
	c.mu.Unlock()

	if msg.From == "" {
		msg.From = c.peerID
	}

	select {
	case outgoing <- msg:
		return nil
	case <-done:
		return ErrNotConnected
	}
}

// Incoming returns the channel of messages received from the endpoint. The
// channel is closed when the session ends.
func (c *Coordinator) Incoming() <-chan *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incoming
}

// readPump reads JSON messages until the connection fails or is closed.
func (c *Coordinator) readPump(conn *websocket.Conn, incoming chan *Message, done chan struct{}) {
	defer func() {
		conn.Close()
		close(incoming)
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
				// Intentional shutdown; Disconnect already reset the state.
			default:
				c.mu.Lock()
				if c.state == StateConnected {
					c.state = StateError
				}
				c.mu.Unlock()

				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"peer_id":  c.peerID,
					"error":    err.Error(),
				}).Warn("Signaling read failed")
			}
			return
		}

		select {
		case incoming <- &msg:
		case <-done:
			return
		}
	}
}

// writePump writes queued messages and sends periodic pings.
func (c *Coordinator) writePump(conn *websocket.Conn, outgoing chan *Message, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "writePump",
					"peer_id":  c.peerID,
					"error":    err.Error(),
				}).Warn("Signaling write failed")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
