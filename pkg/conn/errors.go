package conn

import "errors"

var (
	// ErrSendTimeout is returned to a reliable-send waiter whose packet
	// exhausted max_retries without being acknowledged.
	ErrSendTimeout = errors.New("conn: send timeout, max retries exceeded")

	// ErrHandshakeTimeout is returned when a SYN does not reach
	// Established within the caller's timeout.
	ErrHandshakeTimeout = errors.New("conn: handshake timeout")

	// ErrConnectionReset is returned to callers when an RST is received
	// or sent, regardless of prior state.
	ErrConnectionReset = errors.New("conn: connection reset")

	// ErrConnectionClosed names an operation attempted on a connection
	// already in the Closed state. No function in this package returns
	// it; operations on a Closed connection report no error.
	ErrConnectionClosed = errors.New("conn: connection closed")

	// ErrInvalidTransition names a packet type that is not valid for the
	// connection's current state. HandlePacket does not return it: such a
	// packet is ignored or handled without reporting an error.
	ErrInvalidTransition = errors.New("conn: packet invalid for current state")
)
