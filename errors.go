package sharprudp

import "errors"

// Sentinel errors for the recoverable error kinds the engine reports to
// its logger. None of these are returned across a loop boundary; they are
// wrapped with context and logged, then the loop continues per spec.
var (
	// ErrBadMagic is returned by Decode when a datagram does not start
	// with the configured magic header.
	ErrBadMagic = errors.New("sharprudp: datagram missing magic header")

	// ErrDecode is returned by Decode when the body is shorter than its
	// own declared field lengths.
	ErrDecode = errors.New("sharprudp: malformed packet body")

	// ErrOutOfOrderFresh marks a group whose first packet did not match
	// the expected sequence on a freshly created sequence record.
	ErrOutOfOrderFresh = errors.New("sharprudp: out-of-order packet on new sequence")

	// ErrUnknownClientFirstPacket marks a non-SYN first packet from an
	// unrecognized client; the server silently drops it.
	ErrUnknownClientFirstPacket = errors.New("sharprudp: first packet from unknown client was not SYN")

	// ErrSequenceOverflow marks a peer whose sequence passed the
	// configured SequenceLimit; the server schedules a reset.
	ErrSequenceOverflow = errors.New("sharprudp: sequence limit exceeded")

	// ErrPeerReset marks a client-observed RST from its server.
	ErrPeerReset = errors.New("sharprudp: peer sent RST")

	// ErrClosed is returned by Send/Disconnect after the connection has
	// already been torn down.
	ErrClosed = errors.New("sharprudp: connection is closed")

	// ErrNotServer/ErrNotClient guard role-specific API misuse.
	ErrNotServer = errors.New("sharprudp: operation valid only on a server connection")
	ErrNotClient = errors.New("sharprudp: operation valid only on a client connection")

	// ErrSendFailed wraps a socket-level write failure in transmit; it is
	// logged with context and the packet stays on the unconfirmed list to
	// be caught up by a later resend, rather than being returned to the
	// caller of Send, which already returned once the packet was queued.
	ErrSendFailed = errors.New("sharprudp: failed to write packet to socket")
)
