package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrNotConnected is returned when an operation needs an open stream
	// but Connect has not succeeded or Close has been called.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectFailed is returned when the stream cannot be opened.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrSendFailed is returned when writing to the stream fails.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrReceiveFailed is returned when reading from the stream fails for
	// any reason other than an orderly close by the peer.
	ErrReceiveFailed = errors.New("transport: receive failed")
)
