package walletservice

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("walletservice: not connected")
	// ErrTimeout is returned when no response arrives within the request window.
	ErrTimeout = errors.New("walletservice: request timed out")
	// ErrDisconnected settles requests that were outstanding when the
	// connection was torn down or lost.
	ErrDisconnected = errors.New("walletservice: disconnected")
	// ErrAlreadyConnected is returned by Connect while a connection is active.
	ErrAlreadyConnected = errors.New("walletservice: already connected")
	// ErrRelayRejected is returned when the relay refuses to store a request.
	ErrRelayRejected = errors.New("walletservice: relay rejected event")
	// ErrUnexpectedResult is returned when a response's result_type does not
	// match the request method.
	ErrUnexpectedResult = errors.New("walletservice: unexpected result type")
)

// RemoteError is an error reported by the wallet service in a response.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("walletservice: wallet error %s: %s", e.Code, e.Message)
}
