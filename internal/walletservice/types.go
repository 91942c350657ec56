package walletservice

import (
	"encoding/json"
	"time"
)

// Request methods.
const (
	MethodPayInvoice       = "pay_invoice"
	MethodPayKeysend       = "pay_keysend"
	MethodMakeInvoice      = "make_invoice"
	MethodLookupInvoice    = "lookup_invoice"
	MethodListTransactions = "list_transactions"
	MethodGetBalance       = "get_balance"
	MethodGetInfo          = "get_info"
)

// Notification types.
const (
	NotificationPaymentReceived = "payment_received"
	NotificationPaymentSent     = "payment_sent"
)

// response is the decrypted content of a Response event.
type response struct {
	ResultType string          `json:"result_type"`
	Error      *RemoteError    `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// PayResult is returned by pay_invoice and pay_keysend.
type PayResult struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"`
}

// MakeInvoiceParams are the parameters of make_invoice. Amount is in msat.
type MakeInvoiceParams struct {
	Amount          int64  `json:"amount"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Expiry          int64  `json:"expiry,omitempty"`
}

// KeysendParams are the parameters of pay_keysend.
type KeysendParams struct {
	Amount     int64       `json:"amount"`
	Pubkey     string      `json:"pubkey"`
	Preimage   string      `json:"preimage,omitempty"`
	TLVRecords []TLVRecord `json:"tlv_records,omitempty"`
}

// TLVRecord is a custom record attached to a keysend payment. Value is hex.
type TLVRecord struct {
	Type  uint64 `json:"type"`
	Value string `json:"value"`
}

// LookupInvoiceParams identifies an invoice by payment hash or by the
// invoice itself.
type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

// ListTransactionsParams filters list_transactions. Zero values are omitted.
type ListTransactionsParams struct {
	From   int64  `json:"from,omitempty"`
	Until  int64  `json:"until,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Unpaid bool   `json:"unpaid,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Transaction is an invoice or payment as reported by the wallet.
// Amounts are in msat, times in unix seconds.
type Transaction struct {
	Type            string          `json:"type,omitempty"`
	Invoice         string          `json:"invoice,omitempty"`
	Description     string          `json:"description,omitempty"`
	DescriptionHash string          `json:"description_hash,omitempty"`
	Preimage        string          `json:"preimage,omitempty"`
	PaymentHash     string          `json:"payment_hash,omitempty"`
	Amount          int64           `json:"amount"`
	FeesPaid        int64           `json:"fees_paid,omitempty"`
	CreatedAt       int64           `json:"created_at,omitempty"`
	ExpiresAt       int64           `json:"expires_at,omitempty"`
	SettledAt       int64           `json:"settled_at,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// Balance is the result of get_balance.
type Balance struct {
	Balance int64 `json:"balance"`
}

// Info is the result of get_info.
type Info struct {
	Alias         string   `json:"alias,omitempty"`
	Color         string   `json:"color,omitempty"`
	Pubkey        string   `json:"pubkey,omitempty"`
	Network       string   `json:"network,omitempty"`
	BlockHeight   int64    `json:"block_height,omitempty"`
	BlockHash     string   `json:"block_hash,omitempty"`
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications,omitempty"`
}

// Notification is an unsolicited event pushed by the wallet. CreatedAt is
// the wallet's timestamp on the event, ReceivedAt the local arrival time.
type Notification struct {
	Type        string
	Transaction Transaction
	EventID     string
	CreatedAt   time.Time
	ReceivedAt  time.Time
}

type notificationContent struct {
	NotificationType string      `json:"notification_type"`
	Notification     Transaction `json:"notification"`
}
