// Package transfer orchestrates the send/receive lifecycle of encrypted file
// transfers.
//
// Each active transfer runs as a supervised goroutine that reads or writes
// the file in fixed 1 MiB chunks, encrypts or decrypts every chunk with the
// room's session cipher, and reports progress through the event sink. The
// state machine is strict:
//
//	Pending → Connecting → Connected → Transferring → {Completed, Failed, Cancelled}
//
// Terminal states are never exited. Cancellation is cooperative and observed
// at chunk boundaries; failures inside a transfer loop never crash the
// process, they surface as a Failed transition plus an event. Whole-file
// integrity is verified by re-hashing the file after the last chunk and
// comparing against the checksum captured before the transfer started.
package transfer
