package nwc

import (
	"github.com/gwillem/nwc-go/internal/nostrevent"
	"github.com/gwillem/nwc-go/internal/nostrkey"
	"github.com/gwillem/nwc-go/internal/nwccrypto"
	"github.com/gwillem/nwc-go/internal/walletservice"
)

// Errors returned by the client. Check them with errors.Is.
var (
	// ErrFormat reports a malformed connection URI, key or identifier.
	ErrFormat = nostrkey.ErrFormat
	// ErrInvalidKey reports a key that is well-formed but not usable on the curve.
	ErrInvalidKey = nwccrypto.ErrInvalidKey

	ErrEncoding           = nwccrypto.ErrEncoding
	ErrDecoding           = nwccrypto.ErrDecoding
	ErrAuthentication     = nwccrypto.ErrAuthentication
	ErrUnsupportedVersion = nwccrypto.ErrUnsupportedVersion
	ErrInvalidEvent       = nostrevent.ErrInvalidEvent

	ErrNotConnected     = walletservice.ErrNotConnected
	ErrTimeout          = walletservice.ErrTimeout
	ErrDisconnected     = walletservice.ErrDisconnected
	ErrAlreadyConnected = walletservice.ErrAlreadyConnected
	ErrRelayRejected    = walletservice.ErrRelayRejected
	ErrUnexpectedResult = walletservice.ErrUnexpectedResult
)

// RemoteError is an error reported by the wallet. Use errors.As to get
// its code and message.
type RemoteError = walletservice.RemoteError
