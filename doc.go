// Package driftdrop implements peer-to-peer encrypted file transfer with
// room-based rendezvous.
//
// Two peers meet through a short-lived room identified by a 6-digit access
// code, agree on a session key with a Noise XX handshake relayed over the
// signaling channel, and stream AES-256-GCM encrypted 1 MiB chunks to each
// other over a caller-supplied transport. Whole-file integrity is verified
// with a SHA-256 checksum computed before the transfer and checked again
// after the last chunk.
//
// # Getting Started
//
// Create a client with options, connect to the signaling endpoint and create
// a room to share:
//
//	options := driftdrop.NewOptions()
//	options.Transport = myTransport
//	options.Sink = mySink
//
//	client, err := driftdrop.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Kill()
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	rm, err := client.CreateRoom()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("share this code:", rm.AccessCode)
//
// The joining peer calls JoinRoom with the code, which also starts the key
// agreement. Once the session is established either side can send:
//
//	id, err := client.SendFile(rm.ID, "/path/to/file")
//
// Progress, completion and failure arrive through the event sink; incoming
// transfers are announced the same way and accepted with ReceiveFile.
//
// # Subsystems
//
// The root package is a facade over focused sub-packages:
//
//   - room: rendezvous registry, access codes, 24-hour expiry
//   - signaling: WebSocket coordinator, peer identity, ICE configuration
//   - crypto: chunk cipher, key pairs, Noise XX key agreement
//   - transfer: transfer state machine and supervised chunk loops
//   - checksum: streaming SHA-256 file digests
//   - event: lifecycle notification types and the Sink interface
package driftdrop
