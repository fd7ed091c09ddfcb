package node

import "errors"

// Domain errors for the node package.
var (
	// ErrReconnectExhausted is returned when the reconnect policy allows no
	// further attempts.
	ErrReconnectExhausted = errors.New("node: reconnect attempts exhausted")

	// ErrConnectionLost is returned by Run when the session drops and
	// reconnecting is disabled.
	ErrConnectionLost = errors.New("node: connection lost")
)
