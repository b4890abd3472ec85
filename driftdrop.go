// Package driftdrop implements peer-to-peer encrypted file transfer with
// room-based rendezvous. Peers meet through a 6-digit access code, agree on
// a session key over the signaling channel, and stream AES-256-GCM encrypted
// chunks to each other over a caller-supplied transport.
//
// Basic usage:
//
//	options := driftdrop.NewOptions()
//	options.Transport = myTransport
//	client, err := driftdrop.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Kill()
//
//	rm, err := client.CreateRoom()
//	fmt.Println("share this code:", rm.AccessCode)
package driftdrop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftdrop/driftdrop/crypto"
	"github.com/driftdrop/driftdrop/event"
	"github.com/driftdrop/driftdrop/room"
	"github.com/driftdrop/driftdrop/signaling"
	"github.com/driftdrop/driftdrop/transfer"
)

// ErrNoSession indicates no session key has been established for the room.
// Key agreement runs when a peer joins; transfers must wait for it.
var ErrNoSession = errors.New("no established session for room")

// ErrTransportRequired indicates no chunk transport was configured.
var ErrTransportRequired = errors.New("transport is required")

// Options contains client configuration.
type Options struct {
	// SignalingURL is the WebSocket endpoint used for rendezvous and key
	// agreement.
	SignalingURL string

	// STUNServers and TURNServers form the ICE configuration handed to the
	// transport layer. STUN entries are tried first.
	STUNServers []string
	TURNServers []signaling.TURNServer

	// MaxPeers caps room occupancy for rooms this client creates.
	MaxPeers int

	// IdleTimeout bounds how long a transfer may sit without moving a chunk.
	// Zero disables stall detection.
	IdleTimeout time.Duration

	// StaticKeyPair is the long-term identity key for the Noise handshake.
	// Nil generates a fresh key pair per client.
	StaticKeyPair *crypto.KeyPair

	// Transport carries framed chunks to the peer. Required.
	Transport transfer.Transport

	// Sink receives lifecycle events. Nil discards them.
	Sink event.Sink
}

// NewOptions creates default options for a two-peer client.
func NewOptions() *Options {
	return &Options{
		SignalingURL: "wss://signal.driftdrop.net/ws",
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		MaxPeers:    2,
		IdleTimeout: transfer.DefaultIdleTimeout,
	}
}

// transferOffer is the signaling payload announcing an outgoing transfer to
// the receiving peer.
type transferOffer struct {
	TransferID string                `json:"transfer_id"`
	Metadata   transfer.FileMetadata `json:"metadata"`
}

// Client wires the coordinator, registry and transfer manager together and
// runs the per-room key agreement over the signaling channel.
type Client struct {
	options     *Options
	coordinator *signaling.Coordinator
	registry    *room.Registry
	manager     *transfer.Manager
	staticKey   *crypto.KeyPair
	sink        event.Sink

	mu         sync.Mutex
	handshakes map[string]*crypto.Handshake   // room id -> in-flight handshake
	sessions   map[string]*crypto.ChunkCipher // room id -> established cipher

	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}
}

// New creates a driftdrop client from options. Nil options use defaults,
// but a transport must always be supplied.
func New(options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.Transport == nil {
		return nil, ErrTransportRequired
	}

	staticKey := options.StaticKeyPair
	if staticKey == nil {
		var err error
		staticKey, err = crypto.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate identity key: %w", err)
		}
	}

	sink := options.Sink
	if sink == nil {
		sink = event.Discard
	}

	c := &Client{
		options:    options,
		staticKey:  staticKey,
		sink:       sink,
		handshakes: make(map[string]*crypto.Handshake),
		sessions:   make(map[string]*crypto.ChunkCipher),
	}

	c.coordinator = signaling.NewCoordinator(options.SignalingURL, options.STUNServers, options.TURNServers)
	c.registry = room.NewRegistry(c.coordinator, sink)
	c.manager = transfer.NewManager(c.registry, c, options.Transport, sink)
	c.manager.SetIdleTimeout(options.IdleTimeout)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"peer_id":  c.coordinator.PeerID(),
	}).Info("Driftdrop client created")

	return c, nil
}

// PeerID returns the process-lifetime local peer identifier.
func (c *Client) PeerID() string {
	return c.coordinator.PeerID()
}

// Signaling returns the underlying coordinator, exposing connection state
// and the ICE configuration for the transport layer.
func (c *Client) Signaling() *signaling.Coordinator {
	return c.coordinator
}

// Connect establishes the signaling session and starts dispatching incoming
// signaling messages (handshakes and transfer offers).
func (c *Client) Connect(ctx context.Context) error {
	if err := c.coordinator.Connect(ctx); err != nil {
		return err
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.dispatchCancel = cancel
	c.dispatchDone = done
	c.mu.Unlock()

	go c.dispatch(dispatchCtx, c.coordinator.Incoming(), done)
	return nil
}

// CreateRoom creates a room with a fresh access code. The creating peer acts
// as the handshake responder when another peer joins.
func (c *Client) CreateRoom() (*room.Room, error) {
	return c.registry.CreateRoom(c.options.MaxPeers)
}

// JoinRoom joins a room by access code, announces the join over signaling
// and initiates the key agreement with the host.
func (c *Client) JoinRoom(code string) (*room.Room, error) {
	rm, err := c.registry.JoinRoom(code)
	if err != nil {
		return nil, err
	}

	if c.coordinator.State() == signaling.StateConnected {
		if err := c.coordinator.Send(&signaling.Message{
			Type:   signaling.MessageTypeJoin,
			RoomID: rm.ID,
		}); err != nil {
			return nil, fmt.Errorf("announce join: %w", err)
		}
		if err := c.initiateHandshake(rm.ID); err != nil {
			return nil, err
		}
	}

	return rm, nil
}

// LeaveRoom removes the local peer from a room, announces the leave over
// signaling and drops the room's session key. The room itself is destroyed
// only when its last peer leaves.
func (c *Client) LeaveRoom(roomID string) error {
	if err := c.registry.LeaveRoom(roomID); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.sessions, roomID)
	delete(c.handshakes, roomID)
	c.mu.Unlock()

	if c.coordinator.State() == signaling.StateConnected {
		if err := c.coordinator.Send(&signaling.Message{
			Type:   signaling.MessageTypeLeave,
			RoomID: roomID,
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "LeaveRoom",
				"room_id":  roomID,
				"error":    err.Error(),
			}).Warn("Leave announcement failed")
		}
	}

	return nil
}

// SendFile starts an encrypted transfer of the file at path to the room's
// peer and announces it over signaling. It returns the transfer id; progress
// arrives through the event sink.
func (c *Client) SendFile(roomID, path string) (string, error) {
	id, err := c.manager.SendFile(roomID, path)
	if err != nil {
		return "", err
	}

	snapshot, err := c.manager.GetTransfer(id)
	if err != nil {
		return "", err
	}

	if c.coordinator.State() == signaling.StateConnected {
		payload, err := json.Marshal(transferOffer{TransferID: id, Metadata: snapshot.Metadata})
		if err != nil {
			return "", fmt.Errorf("encode transfer offer: %w", err)
		}
		if err := c.coordinator.Send(&signaling.Message{
			Type:    signaling.MessageTypeOffer,
			RoomID:  roomID,
			Payload: payload,
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "SendFile",
				"transfer_id": id,
				"error":       err.Error(),
			}).Warn("Transfer offer announcement failed")
		}
	}

	return id, nil
}

// ReceiveFile accepts a previously announced incoming transfer and writes the
// decrypted file to savePath.
func (c *Client) ReceiveFile(transferID, savePath string) error {
	return c.manager.ReceiveFile(transferID, savePath)
}

// DeliverChunk feeds one framed chunk from the transport into the matching
// incoming transfer. Chunks must arrive in order.
func (c *Client) DeliverChunk(transferID string, frame []byte) error {
	return c.manager.DeliverChunk(transferID, frame)
}

// CancelTransfer cancels an in-flight transfer. The loop stops at the next
// chunk boundary and no progress events follow the cancellation.
func (c *Client) CancelTransfer(transferID string) error {
	return c.manager.CancelTransfer(transferID)
}

// GetTransfer returns a snapshot of a transfer by id.
func (c *Client) GetTransfer(transferID string) (transfer.Snapshot, error) {
	return c.manager.GetTransfer(transferID)
}

// Transfers returns snapshots of every known transfer.
func (c *Client) Transfers() []transfer.Snapshot {
	return c.manager.Transfers()
}

// GetRoom returns a snapshot of an active room by id.
func (c *Client) GetRoom(roomID string) (*room.Room, error) {
	return c.registry.GetRoom(roomID)
}

// EstablishSession explicitly starts the key agreement for a room as the
// initiating side. JoinRoom does this automatically when the signaling
// session is up; hosts normally respond to the joiner's handshake instead.
func (c *Client) EstablishSession(roomID string) error {
	if c.coordinator.State() != signaling.StateConnected {
		return signaling.ErrNotConnected
	}
	return c.initiateHandshake(roomID)
}

// CipherForRoom returns the chunk cipher for a room's established session.
// It implements transfer.CipherProvider.
func (c *Client) CipherForRoom(roomID string) (*crypto.ChunkCipher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cipher, ok := c.sessions[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, roomID)
	}
	return cipher, nil
}

// SessionEstablished reports whether key agreement for a room has completed.
func (c *Client) SessionEstablished(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[roomID]
	return ok
}

// Kill shuts the client down: in-flight transfers are cancelled and joined,
// the dispatch loop stops and the signaling session closes.
func (c *Client) Kill() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.manager.Shutdown(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"error":    err.Error(),
		}).Warn("Transfer manager shutdown incomplete")
	}

	c.mu.Lock()
	dispatchCancel := c.dispatchCancel
	dispatchDone := c.dispatchDone
	c.mu.Unlock()

	c.coordinator.Disconnect()
	if dispatchCancel != nil {
		dispatchCancel()
		<-dispatchDone
	}

	logrus.WithFields(logrus.Fields{
		"function": "Kill",
		"peer_id":  c.coordinator.PeerID(),
	}).Info("Driftdrop client shut down")
}

// initiateHandshake starts a Noise XX key agreement for a room, sending the
// first handshake message to the host.
func (c *Client) initiateHandshake(roomID string) error {
	hs, err := crypto.NewHandshake(crypto.Initiator, c.staticKey)
	if err != nil {
		return fmt.Errorf("create handshake: %w", err)
	}

	first, err := hs.WriteMessage()
	if err != nil {
		return fmt.Errorf("write handshake message: %w", err)
	}

	c.mu.Lock()
	c.handshakes[roomID] = hs
	c.mu.Unlock()

	return c.coordinator.Send(&signaling.Message{
		Type:    signaling.MessageTypeHandshake,
		RoomID:  roomID,
		Payload: first,
	})
}

// dispatch consumes signaling messages until the session ends or the client
// is killed.
func (c *Client) dispatch(ctx context.Context, incoming <-chan *signaling.Message, done chan struct{}) {
	defer close(done)

	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			c.handleMessage(msg)
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage routes one signaling message.
func (c *Client) handleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeHandshake:
		c.handleHandshake(msg)
	case signaling.MessageTypeOffer:
		c.handleOffer(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"type":     msg.Type,
			"room_id":  msg.RoomID,
		}).Debug("Ignoring signaling message")
	}
}

// handleHandshake advances the key agreement for a room by one message. A
// peer without an in-flight handshake becomes the responder.
func (c *Client) handleHandshake(msg *signaling.Message) {
	c.mu.Lock()
	hs, ok := c.handshakes[msg.RoomID]
	if !ok {
		var err error
		hs, err = crypto.NewHandshake(crypto.Responder, c.staticKey)
		if err != nil {
			c.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "handleHandshake",
				"room_id":  msg.RoomID,
				"error":    err.Error(),
			}).Error("Responder handshake creation failed")
			return
		}
		c.handshakes[msg.RoomID] = hs
	}
	c.mu.Unlock()

	if err := hs.ReadMessage(msg.Payload); err != nil {
		c.abortHandshake(msg.RoomID, err)
		return
	}

	if !hs.Complete() {
		reply, err := hs.WriteMessage()
		if err != nil {
			c.abortHandshake(msg.RoomID, err)
			return
		}
		if err := c.coordinator.Send(&signaling.Message{
			Type:    signaling.MessageTypeHandshake,
			RoomID:  msg.RoomID,
			To:      msg.From,
			Payload: reply,
		}); err != nil {
			c.abortHandshake(msg.RoomID, err)
			return
		}
	}

	if hs.Complete() {
		c.finishHandshake(msg.RoomID, hs)
	}
}

// finishHandshake derives the room's chunk cipher from the completed
// handshake and retires the handshake state.
func (c *Client) finishHandshake(roomID string, hs *crypto.Handshake) {
	key, err := hs.SessionKey(roomID)
	if err != nil {
		c.abortHandshake(roomID, err)
		return
	}
	cipher, err := crypto.NewChunkCipher(key)
	if err != nil {
		c.abortHandshake(roomID, err)
		return
	}

	c.mu.Lock()
	c.sessions[roomID] = cipher
	delete(c.handshakes, roomID)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "finishHandshake",
		"room_id":  roomID,
	}).Info("Session key established")
}

// abortHandshake drops a failed handshake so a later attempt can restart it.
func (c *Client) abortHandshake(roomID string, cause error) {
	c.mu.Lock()
	delete(c.handshakes, roomID)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "abortHandshake",
		"room_id":  roomID,
		"error":    cause.Error(),
	}).Error("Key agreement failed")
}

// handleOffer registers an announced incoming transfer. The application
// accepts it with ReceiveFile.
func (c *Client) handleOffer(msg *signaling.Message) {
	var offer transferOffer
	if err := json.Unmarshal(msg.Payload, &offer); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"room_id":  msg.RoomID,
			"error":    err.Error(),
		}).Warn("Malformed transfer offer")
		return
	}

	if _, err := c.manager.RegisterIncoming(offer.TransferID, msg.RoomID, offer.Metadata); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "handleOffer",
			"transfer_id": offer.TransferID,
			"room_id":     msg.RoomID,
			"error":       err.Error(),
		}).Warn("Incoming transfer registration failed")
	}
}
