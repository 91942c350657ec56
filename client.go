// Package nwc provides a high-level client for controlling a remote
// Lightning wallet over Nostr Wallet Connect.
package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gwillem/nwc-go/internal/store"
	"github.com/gwillem/nwc-go/internal/walletservice"
)

// Notification is a payment notification pushed by the wallet.
type Notification = walletservice.Notification

// ConnectionState is a snapshot of the connection and what is known about the wallet.
type ConnectionState = walletservice.ConnectionState

// State is the lifecycle state of a connection.
type State = walletservice.State

const (
	Disconnected = walletservice.Disconnected
	Connecting   = walletservice.Connecting
	Connected    = walletservice.Connected
	Error        = walletservice.Error
)

// Request and result types.
type (
	Descriptor             = walletservice.Descriptor
	Transaction            = walletservice.Transaction
	PayResult              = walletservice.PayResult
	Balance                = walletservice.Balance
	Info                   = walletservice.Info
	MakeInvoiceParams      = walletservice.MakeInvoiceParams
	KeysendParams          = walletservice.KeysendParams
	TLVRecord              = walletservice.TLVRecord
	LookupInvoiceParams    = walletservice.LookupInvoiceParams
	ListTransactionsParams = walletservice.ListTransactionsParams
)

// DefaultNotificationLimit is the number of notifications kept in the
// database log unless WithNotificationLimit says otherwise.
const DefaultNotificationLimit = 1000

// Notification types.
const (
	NotificationPaymentReceived = walletservice.NotificationPaymentReceived
	NotificationPaymentSent     = walletservice.NotificationPaymentSent
)

// Storage holds the last connection URI. The SQLite database satisfies it;
// WithStorage substitutes another implementation.
type Storage = walletservice.URIStore

// ParseConnectionURI parses a nostr+walletconnect:// URI.
func ParseConnectionURI(uri string) (*Descriptor, error) {
	return walletservice.ParseConnectionURI(uri)
}

// ErrNoNotificationLog is returned by RecentNotifications when the client
// runs without a database.
var ErrNoNotificationLog = errors.New("nwc: notification log unavailable")

// Client is the main entry point for talking to a wallet.
type Client struct {
	dbPath             string
	logger             *log.Logger
	storage            Storage
	requestTimeout     time.Duration
	infoTimeout        time.Duration
	keepAliveInterval  time.Duration
	notificationBuffer int
	notificationLimit  int
	onNotification     func(Notification)

	mu      sync.Mutex
	store   *store.Store // opened lazily by openStore
	service *walletservice.Service
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for verbose output.
// If not set, logging is disabled.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDBPath overrides the database path for persistent storage.
// If not set, defaults to $XDG_DATA_HOME/nwc-go/nwc.db.
func WithDBPath(path string) Option {
	return func(c *Client) { c.dbPath = path }
}

// WithStorage keeps the connection URI in s instead of the database. No
// database is opened, so the notification log is disabled.
func WithStorage(s Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithRequestTimeout sets how long wallet operations wait for a response.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithInfoTimeout sets the timeout of the get_info probe sent after connecting.
func WithInfoTimeout(d time.Duration) Option {
	return func(c *Client) { c.infoTimeout = d }
}

// WithKeepAliveInterval sets the relay ping interval. A negative value
// disables pings.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Client) { c.keepAliveInterval = d }
}

// WithNotificationBuffer sets the capacity of the Notifications channel.
func WithNotificationBuffer(n int) Option {
	return func(c *Client) { c.notificationBuffer = n }
}

// WithNotificationLimit sets how many notifications the database log keeps.
// Older entries are pruned as new ones arrive. Zero keeps everything.
func WithNotificationLimit(n int) Option {
	return func(c *Client) { c.notificationLimit = n }
}

// WithNotificationHandler registers fn to be called for every notification,
// after it has been logged to the database. fn must not block.
func WithNotificationHandler(fn func(Notification)) Option {
	return func(c *Client) { c.onNotification = fn }
}

// NewClient creates a disconnected client. The database is opened on first use.
func NewClient(opts ...Option) *Client {
	c := &Client{
		requestTimeout:     walletservice.DefaultRequestTimeout,
		infoTimeout:        walletservice.DefaultInfoTimeout,
		notificationBuffer: walletservice.DefaultNotificationBuffer,
		notificationLimit:  DefaultNotificationLimit,
	}
	for _, o := range opts {
		o(c)
	}
	c.service = walletservice.NewService(walletservice.Config{
		Logger:             c.logger,
		Store:              uriSlot{c},
		RequestTimeout:     c.requestTimeout,
		InfoTimeout:        c.infoTimeout,
		KeepAliveInterval:  c.keepAliveInterval,
		NotificationBuffer: c.notificationBuffer,
		OnNotification:     c.handleNotification,
	})
	return c
}

// Connect connects to the wallet described by uri and remembers the URI
// for Restore.
func (c *Client) Connect(ctx context.Context, uri string) error {
	return c.service.Connect(ctx, uri)
}

// Restore reconnects to the last wallet connected with Connect, if any.
// It makes one attempt and reports whether a saved connection existed.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	return c.service.Restore(ctx)
}

// Disconnect closes the connection, fails outstanding requests with
// ErrDisconnected and forgets the saved connection.
func (c *Client) Disconnect() error {
	return c.service.Disconnect()
}

// Close closes the connection and the database. The saved connection is
// kept for a later Restore.
func (c *Client) Close() error {
	c.service.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		err := c.store.Close()
		c.store = nil
		return err
	}
	return nil
}

// State returns a snapshot of the connection state.
func (c *Client) State() ConnectionState {
	return c.service.State()
}

// Done returns a channel that is closed when the current connection ends,
// including when the relay drops it. Check State for the cause.
func (c *Client) Done() <-chan struct{} {
	return c.service.Done()
}

// Notifications returns the channel wallet notifications are delivered on.
// Delivery is best-effort; RecentNotifications has the durable record.
func (c *Client) Notifications() <-chan Notification {
	return c.service.Notifications()
}

// PayInvoice pays a BOLT-11 invoice. amountMsat is only needed for
// zero-amount invoices; pass 0 to omit it.
func (c *Client) PayInvoice(ctx context.Context, invoice string, amountMsat int64) (*PayResult, error) {
	return c.service.PayInvoice(ctx, invoice, amountMsat)
}

// PayKeysend sends a spontaneous payment to a node.
func (c *Client) PayKeysend(ctx context.Context, p KeysendParams) (*PayResult, error) {
	return c.service.PayKeysend(ctx, p)
}

// MakeInvoice asks the wallet to create an invoice.
func (c *Client) MakeInvoice(ctx context.Context, p MakeInvoiceParams) (*Transaction, error) {
	return c.service.MakeInvoice(ctx, p)
}

// LookupInvoice fetches an invoice by payment hash or invoice string.
func (c *Client) LookupInvoice(ctx context.Context, p LookupInvoiceParams) (*Transaction, error) {
	return c.service.LookupInvoice(ctx, p)
}

// ListTransactions returns invoices and payments matching p.
func (c *Client) ListTransactions(ctx context.Context, p ListTransactionsParams) ([]Transaction, error) {
	return c.service.ListTransactions(ctx, p)
}

// GetBalance returns the wallet balance in msat.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	return c.service.GetBalance(ctx)
}

// GetInfo returns wallet information, including the supported methods.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	return c.service.GetInfo(ctx)
}

// RecentNotifications returns up to limit logged notifications, newest first.
func (c *Client) RecentNotifications(limit int) ([]Notification, error) {
	st, err := c.openStore()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNoNotificationLog
	}
	rows, err := st.RecentNotifications(limit)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n := Notification{Type: r.Type, EventID: r.EventID, ReceivedAt: r.ReceivedAt}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &n.Transaction); err != nil {
				return nil, fmt.Errorf("nwc: decode notification %s: %w", r.EventID, err)
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *Client) handleNotification(n Notification) {
	if err := c.logNotification(n); err != nil {
		logf(c.logger, "nwc: log notification: %v", err)
	}
	if c.onNotification != nil {
		c.onNotification(n)
	}
}

func (c *Client) logNotification(n Notification) error {
	st, err := c.openStore()
	if err != nil || st == nil {
		return err
	}
	payload, err := json.Marshal(n.Transaction)
	if err != nil {
		return fmt.Errorf("nwc: marshal notification: %w", err)
	}
	err = st.SaveNotification(&store.Notification{
		EventID:     n.EventID,
		Type:        n.Type,
		PaymentHash: n.Transaction.PaymentHash,
		Amount:      n.Transaction.Amount,
		ReceivedAt:  n.ReceivedAt,
		Payload:     payload,
	})
	if err != nil || c.notificationLimit <= 0 {
		return err
	}
	removed, err := st.PruneNotifications(c.notificationLimit)
	if removed > 0 {
		logf(c.logger, "nwc: pruned %d old notifications", removed)
	}
	return err
}

// openStore opens the database on first use. It returns nil, nil when a
// custom Storage replaces the database.
func (c *Client) openStore() (*store.Store, error) {
	if c.storage != nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	st, err := store.Open(c.dbPath)
	if err != nil {
		return nil, err
	}
	logf(c.logger, "nwc: opened database %s", c.resolvedDBPath())
	c.store = st
	return st, nil
}

func (c *Client) resolvedDBPath() string {
	if c.dbPath != "" {
		return c.dbPath
	}
	return store.DefaultPath()
}

// uriSlot routes connection URI persistence to WithStorage or the database.
type uriSlot struct{ c *Client }

func (u uriSlot) SaveConnectionURI(uri string) error {
	if u.c.storage != nil {
		return u.c.storage.SaveConnectionURI(uri)
	}
	st, err := u.c.openStore()
	if err != nil {
		return err
	}
	return st.SaveConnectionURI(uri)
}

func (u uriSlot) LoadConnectionURI() (string, error) {
	if u.c.storage != nil {
		return u.c.storage.LoadConnectionURI()
	}
	st, err := u.c.openStore()
	if err != nil {
		return "", err
	}
	return st.LoadConnectionURI()
}

func (u uriSlot) ClearConnectionURI() error {
	if u.c.storage != nil {
		return u.c.storage.ClearConnectionURI()
	}
	st, err := u.c.openStore()
	if err != nil {
		return err
	}
	return st.ClearConnectionURI()
}

// logf logs a message if the logger is non-nil.
func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
