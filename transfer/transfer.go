package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a transfer.
type Status uint8

const (
	// StatusPending is the only initial state.
	StatusPending Status = iota
	// StatusConnecting means the background loop is establishing the session.
	StatusConnecting
	// StatusConnected means the session is up but no chunk has moved yet.
	StatusConnected
	// StatusTransferring means chunks are flowing.
	StatusTransferring
	// StatusCompleted is terminal: all chunks moved and the checksum matched.
	StatusCompleted
	// StatusFailed is terminal: the transfer hit an unrecoverable error.
	StatusFailed
	// StatusCancelled is terminal: the transfer was cancelled by the caller.
	StatusCancelled
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusTransferring:
		return "transferring"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can never be exited.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// next returns the forward transition from a non-terminal state.
var forwardTransition = map[Status]Status{
	StatusPending:    StatusConnecting,
	StatusConnecting: StatusConnected,
	StatusConnected:  StatusTransferring,
}

// canTransition reports whether moving from s to next is legal. Forward
// progress follows the fixed chain; Failed and Cancelled are reachable from
// any non-terminal state; Completed only from Transferring.
func (s Status) canTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusFailed, StatusCancelled:
		return true
	case StatusCompleted:
		return s == StatusTransferring
	default:
		return forwardTransition[s] == next
	}
}

// ErrIllegalTransition indicates an attempted state change the machine
// forbids.
var ErrIllegalTransition = errors.New("illegal transfer state transition")

// Transfer tracks one file moving in or out. All mutable fields are guarded
// by mu; once a terminal status is reached the transfer is immutable and
// only snapshots escape.
type Transfer struct {
	id       string
	roomID   string
	metadata FileMetadata
	isSender bool

	mu          sync.Mutex
	status      Status
	bytes       uint64
	progress    float64
	speed       float64
	startedAt   time.Time
	completedAt time.Time
	errReason   string
}

// Snapshot is an immutable copy of a transfer's observable state, used as
// event payload and query result.
type Snapshot struct {
	ID               string       `json:"id"`
	RoomID           string       `json:"room_id"`
	Metadata         FileMetadata `json:"metadata"`
	Status           Status       `json:"status"`
	Progress         float64      `json:"progress"`
	BytesTransferred uint64       `json:"bytes_transferred"`
	Speed            float64      `json:"speed"`
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      time.Time    `json:"completed_at"`
	Error            string       `json:"error,omitempty"`
	IsSender         bool         `json:"is_sender"`
}

func newTransfer(id, roomID string, meta FileMetadata, isSender bool) *Transfer {
	return &Transfer{
		id:       id,
		roomID:   roomID,
		metadata: meta,
		isSender: isSender,
		status:   StatusPending,
	}
}

// ID returns the transfer identifier.
func (t *Transfer) ID() string { return t.id }

// RoomID returns the owning room identifier.
func (t *Transfer) RoomID() string { return t.roomID }

// Metadata returns the file metadata captured at registration.
func (t *Transfer) Metadata() FileMetadata { return t.metadata }

// IsSender reports whether this is the sending side.
func (t *Transfer) IsSender() bool { return t.isSender }

// Status returns the current status.
func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot copies the observable state under the lock.
func (t *Transfer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transfer) snapshotLocked() Snapshot {
	return Snapshot{
		ID:               t.id,
		RoomID:           t.roomID,
		Metadata:         t.metadata,
		Status:           t.status,
		Progress:         t.progress,
		BytesTransferred: t.bytes,
		Speed:            t.speed,
		StartedAt:        t.startedAt,
		CompletedAt:      t.completedAt,
		Error:            t.errReason,
		IsSender:         t.isSender,
	}
}

// advance moves the transfer to next, returning the resulting snapshot.
func (t *Transfer) advance(next Status) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.canTransition(next) {
		return Snapshot{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.status, next)
	}
	t.status = next

	switch next {
	case StatusTransferring:
		t.startedAt = time.Now()
	case StatusCompleted, StatusFailed, StatusCancelled:
		t.completedAt = time.Now()
	}

	return t.snapshotLocked(), nil
}

// fail marks the transfer Failed with a human-readable reason. It reports
// false when the transfer is already terminal.
func (t *Transfer) fail(reason string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return Snapshot{}, false
	}
	t.status = StatusFailed
	t.errReason = reason
	t.completedAt = time.Now()
	return t.snapshotLocked(), true
}

// recordProgress accumulates n transferred bytes and recomputes progress and
// the running-average speed. It reports false, without mutating anything,
// when the transfer is no longer in the Transferring state, so no progress
// is ever recorded after a terminal transition.
func (t *Transfer) recordProgress(n uint64) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusTransferring {
		return Snapshot{}, false
	}

	t.bytes += n
	if t.metadata.Size > 0 {
		t.progress = float64(t.bytes) / float64(t.metadata.Size) * 100.0
	} else {
		t.progress = 100.0
	}
	if elapsed := time.Since(t.startedAt).Seconds(); elapsed > 0 {
		t.speed = float64(t.bytes) / elapsed
	}

	return t.snapshotLocked(), true
}
