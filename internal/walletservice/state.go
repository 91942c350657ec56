package walletservice

import "slices"

// State is the lifecycle state of a Service connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// ConnectionState is a snapshot of the connection and what has been
// learned about the wallet.
type ConnectionState struct {
	State        State
	WalletPubKey string
	ClientPubKey string
	RelayURL     string

	// Capabilities lists the methods the wallet supports, from its info
	// event or get_info.
	Capabilities []string
	// NotificationTypes lists the notification types the wallet sends.
	NotificationTypes []string
	// Encryption lists the encryption schemes the wallet advertises.
	Encryption []string

	// Balance is the last balance in msat seen from get_balance; nil if unknown.
	Balance *int64

	LastError error
}

// Supports reports whether the wallet advertised method.
func (cs ConnectionState) Supports(method string) bool {
	return slices.Contains(cs.Capabilities, method)
}

func (cs ConnectionState) clone() ConnectionState {
	out := cs
	out.Capabilities = slices.Clone(cs.Capabilities)
	out.NotificationTypes = slices.Clone(cs.NotificationTypes)
	out.Encryption = slices.Clone(cs.Encryption)
	if cs.Balance != nil {
		b := *cs.Balance
		out.Balance = &b
	}
	return out
}
