package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/driftdrop/driftdrop/checksum"
	"github.com/driftdrop/driftdrop/crypto"
	"github.com/driftdrop/driftdrop/event"
	"github.com/driftdrop/driftdrop/room"
)

// DefaultIdleTimeout is how long a transfer may sit without moving a chunk
// before it is forced to Failed.
const DefaultIdleTimeout = 30 * time.Second

// inboundBuffer is the per-transfer queue depth for delivered chunks.
const inboundBuffer = 16

// ErrTransferNotFound indicates no transfer matches the given id.
var ErrTransferNotFound = errors.New("transfer not found")

// ErrTransferFinished indicates an operation on a transfer that already
// reached a terminal state.
var ErrTransferFinished = errors.New("transfer already finished")

// ErrNotReceivable indicates ReceiveFile was called on a transfer that is
// not a pending incoming transfer.
var ErrNotReceivable = errors.New("transfer is not a pending incoming transfer")

// ErrTransferStalled indicates no chunk moved within the idle timeout.
var ErrTransferStalled = errors.New("transfer stalled: no data within timeout period")

// checksumMismatchReason is the failure reason attached when the whole-file
// digest does not match the pre-transfer checksum.
const checksumMismatchReason = "Checksum mismatch"

// Transport is the reliable ordered byte-stream collaborator that carries
// framed chunks to the peer. SendChunk blocks until the transport accepts
// the frame; that blocking is the transfer loop's backpressure.
type Transport interface {
	SendChunk(ctx context.Context, transferID string, frame []byte) error
}

// RoomValidator validates that a room exists and is still active. It is
// satisfied by *room.Registry.
type RoomValidator interface {
	GetRoom(roomID string) (*room.Room, error)
}

// CipherProvider supplies the chunk cipher for a room's established session.
type CipherProvider interface {
	CipherForRoom(roomID string) (*crypto.ChunkCipher, error)
}

// CipherProviderFunc adapts a function to the CipherProvider interface.
type CipherProviderFunc func(roomID string) (*crypto.ChunkCipher, error)

// CipherForRoom implements CipherProvider for CipherProviderFunc.
func (f CipherProviderFunc) CipherForRoom(roomID string) (*crypto.ChunkCipher, error) {
	return f(roomID)
}

// Manager owns the transfer map and supervises one background goroutine per
// active transfer. Shutdown cancels and joins every loop; nothing is ever
// fire-and-forget.
type Manager struct {
	rooms       RoomValidator
	ciphers     CipherProvider
	transport   Transport
	sink        event.Sink
	idleTimeout time.Duration

	mu        sync.RWMutex
	transfers map[string]*Transfer
	inbound   map[string]chan []byte
	cancels   map[string]context.CancelFunc

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a transfer manager. A nil sink discards events.
func NewManager(rooms RoomValidator, ciphers CipherProvider, transport Transport, sink event.Sink) *Manager {
	if sink == nil {
		sink = event.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		rooms:       rooms,
		ciphers:     ciphers,
		transport:   transport,
		sink:        sink,
		idleTimeout: DefaultIdleTimeout,
		transfers:   make(map[string]*Transfer),
		inbound:     make(map[string]chan []byte),
		cancels:     make(map[string]context.CancelFunc),
		rootCtx:     ctx,
		rootCancel:  cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
	}).Info("Transfer manager created")

	return m
}

// SetIdleTimeout configures the stall detection window for subsequent
// transfers. Zero disables stall detection.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = d
}

// SendFile validates the room, captures file metadata (including the
// pre-transfer checksum), registers a Pending transfer and launches its
// background loop. It returns the transfer id immediately.
func (m *Manager) SendFile(roomID, path string) (string, error) {
	if _, err := m.rooms.GetRoom(roomID); err != nil {
		return "", fmt.Errorf("validate room: %w", err)
	}

	meta, err := BuildFileMetadata(path)
	if err != nil {
		return "", err
	}

	cipher, err := m.ciphers.CipherForRoom(roomID)
	if err != nil {
		return "", fmt.Errorf("session cipher for room %s: %w", roomID, err)
	}

	t := newTransfer(uuid.New().String(), roomID, meta, true)
	ctx := m.register(t)

	logrus.WithFields(logrus.Fields{
		"function":    "SendFile",
		"transfer_id": t.ID(),
		"room_id":     roomID,
		"file_name":   meta.Name,
		"file_size":   meta.Size,
		"chunks":      meta.Chunks,
	}).Info("Outgoing transfer registered")

	m.sink.Publish(event.New(event.TransferCreated, t.Snapshot()))

	m.wg.Add(1)
	go m.runSend(ctx, t, cipher, path)

	return t.ID(), nil
}

// RegisterIncoming records a transfer announced by the sending peer. The
// transfer id and metadata arrive over the signaling channel; the transfer
// stays Pending until ReceiveFile starts the loop.
func (m *Manager) RegisterIncoming(transferID, roomID string, meta FileMetadata) (Snapshot, error) {
	if _, err := m.rooms.GetRoom(roomID); err != nil {
		return Snapshot{}, fmt.Errorf("validate room: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.transfers[transferID]; exists {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("transfer %s already registered", transferID)
	}
	t := newTransfer(transferID, roomID, meta, false)
	m.transfers[transferID] = t
	m.inbound[transferID] = make(chan []byte, inboundBuffer)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "RegisterIncoming",
		"transfer_id": transferID,
		"room_id":     roomID,
		"file_name":   meta.Name,
		"file_size":   meta.Size,
	}).Info("Incoming transfer registered")

	snapshot := t.Snapshot()
	m.sink.Publish(event.New(event.TransferCreated, snapshot))
	return snapshot, nil
}

// ReceiveFile starts the background receive loop for a previously registered
// incoming transfer, writing decrypted chunks to savePath. Non-blocking.
func (m *Manager) ReceiveFile(transferID, savePath string) error {
	m.mu.Lock()
	t, ok := m.transfers[transferID]
	if !ok {
		m.mu.Unlock()
		return ErrTransferNotFound
	}
	inbound := m.inbound[transferID]
	m.mu.Unlock()

	if t.IsSender() || t.Status() != StatusPending {
		return ErrNotReceivable
	}

	cipher, err := m.ciphers.CipherForRoom(t.RoomID())
	if err != nil {
		return fmt.Errorf("session cipher for room %s: %w", t.RoomID(), err)
	}

	ctx := m.track(t.ID())

	logrus.WithFields(logrus.Fields{
		"function":    "ReceiveFile",
		"transfer_id": transferID,
		"save_path":   savePath,
	}).Info("Starting receive loop")

	m.wg.Add(1)
	go m.runReceive(ctx, t, cipher, savePath, inbound)

	return nil
}

// DeliverChunk feeds one framed chunk from the transport into an incoming
// transfer's loop. Chunks must be delivered strictly in order; the transport
// collaborator guarantees that.
func (m *Manager) DeliverChunk(transferID string, frame []byte) error {
	m.mu.RLock()
	inbound, ok := m.inbound[transferID]
	m.mu.RUnlock()
	if !ok {
		return ErrTransferNotFound
	}

	select {
	case inbound <- frame:
		return nil
	case <-m.rootCtx.Done():
		return ErrTransferFinished
	}
}

// CancelTransfer marks a transfer Cancelled and signals its loop, which
// stops at the next chunk boundary. At most one chunk of extra work may
// complete after the call; no progress events follow it.
func (m *Manager) CancelTransfer(transferID string) error {
	m.mu.Lock()
	t, ok := m.transfers[transferID]
	cancel := m.cancels[transferID]
	m.mu.Unlock()
	if !ok {
		return ErrTransferNotFound
	}

	snapshot, err := t.advance(StatusCancelled)
	if err != nil {
		return ErrTransferFinished
	}
	if cancel != nil {
		cancel()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CancelTransfer",
		"transfer_id": transferID,
		"bytes":       snapshot.BytesTransferred,
	}).Info("Transfer cancelled")

	m.sink.Publish(event.New(event.TransferCancelled, snapshot))
	return nil
}

// GetTransfer returns a snapshot of a transfer by id.
func (m *Manager) GetTransfer(transferID string) (Snapshot, error) {
	m.mu.RLock()
	t, ok := m.transfers[transferID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrTransferNotFound
	}
	return t.Snapshot(), nil
}

// Transfers returns snapshots of every known transfer.
func (m *Manager) Transfers() []Snapshot {
	m.mu.RLock()
	list := make([]*Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		list = append(list, t)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, t := range list {
		out = append(out, t.Snapshot())
	}
	return out
}

// Shutdown cancels every in-flight transfer and waits for the loops to
// finish, bounded by ctx. In-flight transfers are marked Cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	active := make([]*Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		active = append(active, t)
	}
	m.mu.Unlock()

	for _, t := range active {
		if snapshot, err := t.advance(StatusCancelled); err == nil {
			m.sink.Publish(event.New(event.TransferCancelled, snapshot))
		}
	}
	m.rootCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.WithFields(logrus.Fields{
			"function": "Shutdown",
		}).Info("Transfer manager shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// register stores a transfer and allocates its supervision context.
func (m *Manager) register(t *Transfer) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.ID()] = t
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.cancels[t.ID()] = cancel
	return ctx
}

// track allocates a supervision context for an already stored transfer.
func (m *Manager) track(transferID string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.cancels[transferID] = cancel
	return ctx
}

// release frees the supervision bookkeeping for a finished loop.
func (m *Manager) release(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[transferID]; ok {
		cancel()
		delete(m.cancels, transferID)
	}
	delete(m.inbound, transferID)
}

// stepForward advances the transfer through a non-terminal state, emitting a
// progress event. It reports false when the transfer was cancelled
// concurrently, which the loop treats as a signal to stop quietly.
func (m *Manager) stepForward(t *Transfer, next Status) bool {
	snapshot, err := t.advance(next)
	if err != nil {
		return false
	}
	m.sink.Publish(event.New(event.TransferProgress, snapshot))
	return true
}

// failTransfer marks the transfer Failed and emits the event, unless the
// transfer already reached a terminal state.
func (m *Manager) failTransfer(t *Transfer, reason string) {
	snapshot, ok := t.fail(reason)
	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":    "failTransfer",
		"transfer_id": t.ID(),
		"reason":      reason,
	}).Error("Transfer failed")

	m.sink.Publish(event.New(event.TransferFailed, snapshot))
}

// finalize re-hashes the completed file and compares against the checksum
// captured before the transfer started. Mismatch is always fatal.
func (m *Manager) finalize(t *Transfer, path string) {
	if err := checksum.VerifyFile(path, t.Metadata().Checksum); err != nil {
		if errors.Is(err, checksum.ErrChecksumMismatch) {
			m.failTransfer(t, fmt.Sprintf("%s: %v", checksumMismatchReason, err))
		} else {
			m.failTransfer(t, fmt.Sprintf("verify file: %v", err))
		}
		return
	}

	snapshot, err := t.advance(StatusCompleted)
	if err != nil {
		// Cancelled between the last chunk and finalization.
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":    "finalize",
		"transfer_id": t.ID(),
		"bytes":       snapshot.BytesTransferred,
		"speed":       snapshot.Speed,
	}).Info("Transfer completed")

	m.sink.Publish(event.New(event.TransferCompleted, snapshot))
}

// runSend is the background loop for an outgoing transfer. It owns the
// source file handle exclusively and releases it on any exit path.
func (m *Manager) runSend(ctx context.Context, t *Transfer, cipher *crypto.ChunkCipher, path string) {
	defer m.wg.Done()
	defer m.release(t.ID())

	if !m.stepForward(t, StatusConnecting) ||
		!m.stepForward(t, StatusConnected) ||
		!m.stepForward(t, StatusTransferring) {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		m.failTransfer(t, fmt.Sprintf("open source file: %v", err))
		return
	}
	defer f.Close()

	m.mu.RLock()
	idle := m.idleTimeout
	m.mu.RUnlock()

	buf := make([]byte, ChunkSize)
	for {
		// Cancellation is cooperative: checked once per chunk boundary.
		if ctx.Err() != nil {
			return
		}

		n, err := readChunk(f, buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			m.failTransfer(t, fmt.Sprintf("read source file: %v", err))
			return
		}

		frame, encErr := cipher.EncryptChunk(buf[:n])
		if encErr != nil {
			m.failTransfer(t, fmt.Sprintf("encrypt chunk: %v", encErr))
			return
		}

		if sendErr := m.sendFrame(ctx, t.ID(), frame, idle); sendErr != nil {
			if ctx.Err() != nil {
				return
			}
			m.failTransfer(t, fmt.Sprintf("send chunk: %v", sendErr))
			return
		}

		snapshot, ok := t.recordProgress(uint64(n))
		if !ok {
			return
		}
		m.sink.Publish(event.New(event.TransferProgress, snapshot))

		if err == io.EOF {
			break
		}
	}

	m.finalize(t, path)
}

// sendFrame hands one frame to the transport, bounded by the idle timeout.
func (m *Manager) sendFrame(ctx context.Context, transferID string, frame []byte, idle time.Duration) error {
	if idle <= 0 {
		return m.transport.SendChunk(ctx, transferID, frame)
	}

	sendCtx, cancel := context.WithTimeout(ctx, idle)
	defer cancel()

	if err := m.transport.SendChunk(sendCtx, transferID, frame); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTransferStalled
		}
		return err
	}
	return nil
}

// readChunk fills buf from f, returning a short count only at end of file.
func readChunk(f *os.File, buf []byte) (int, error) {
	n, err := io.ReadFull(f, buf)
	switch {
	case err == io.ErrUnexpectedEOF:
		return n, io.EOF
	case err == io.EOF:
		return 0, io.EOF
	default:
		return n, err
	}
}

// runReceive is the background loop for an incoming transfer. It owns the
// destination file handle exclusively and releases it on any exit path.
func (m *Manager) runReceive(ctx context.Context, t *Transfer, cipher *crypto.ChunkCipher, savePath string, inbound <-chan []byte) {
	defer m.wg.Done()
	defer m.release(t.ID())

	if !m.stepForward(t, StatusConnecting) ||
		!m.stepForward(t, StatusConnected) ||
		!m.stepForward(t, StatusTransferring) {
		return
	}

	f, err := os.Create(savePath)
	if err != nil {
		m.failTransfer(t, fmt.Sprintf("create destination file: %v", err))
		return
	}

	m.mu.RLock()
	idle := m.idleTimeout
	m.mu.RUnlock()

	size := t.Metadata().Size
	var received uint64

	for received < size {
		frame, ok := m.nextFrame(ctx, inbound, idle)
		if !ok {
			if ctx.Err() != nil {
				f.Close()
				return
			}
			f.Close()
			m.failTransfer(t, ErrTransferStalled.Error())
			return
		}

		plaintext, decErr := cipher.DecryptChunk(frame)
		if decErr != nil {
			f.Close()
			m.failTransfer(t, fmt.Sprintf("decrypt chunk: %v", decErr))
			return
		}

		if _, wErr := f.Write(plaintext); wErr != nil {
			f.Close()
			m.failTransfer(t, fmt.Sprintf("write destination file: %v", wErr))
			return
		}
		received += uint64(len(plaintext))

		snapshot, ok := t.recordProgress(uint64(len(plaintext)))
		if !ok {
			f.Close()
			return
		}
		m.sink.Publish(event.New(event.TransferProgress, snapshot))
	}

	if err := f.Close(); err != nil {
		m.failTransfer(t, fmt.Sprintf("close destination file: %v", err))
		return
	}

	m.finalize(t, savePath)
}

// nextFrame waits for the next inbound chunk, the idle timeout, or
// cancellation.
func (m *Manager) nextFrame(ctx context.Context, inbound <-chan []byte, idle time.Duration) ([]byte, bool) {
	if idle <= 0 {
		select {
		case frame := <-inbound:
			return frame, true
		case <-ctx.Done():
			return nil, false
		}
	}

	timer := time.NewTimer(idle)
	defer timer.Stop()

	select {
	case frame := <-inbound:
		return frame, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
