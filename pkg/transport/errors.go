package transport

import "errors"

var (
	// ErrTransportClosed is returned by send operations issued after
	// Stop, and delivered to every reliable-send waiter during
	// shutdown.
	ErrTransportClosed = errors.New("transport: closed")

	// ErrInvalidPeer is returned when a peer address cannot be parsed.
	ErrInvalidPeer = errors.New("transport: invalid peer address")

	// ErrPayloadTooLarge is returned when a message would require more
	// fragments than the wire format can address.
	ErrPayloadTooLarge = errors.New("transport: payload exceeds maximum fragment count")

	// ErrAlreadyStarted is returned by Start on a transport that is
	// already running.
	ErrAlreadyStarted = errors.New("transport: already started")
)
