// Package walletservice talks to a remote Lightning wallet over a relay:
// it parses connection URIs, runs the connection state machine, and
// correlates encrypted responses with the requests that caused them.
package walletservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gwillem/nwc-go/internal/nostrevent"
	"github.com/gwillem/nwc-go/internal/nostrkey"
	"github.com/gwillem/nwc-go/internal/relayws"
)

const (
	DefaultRequestTimeout     = 30 * time.Second
	DefaultInfoTimeout        = 10 * time.Second
	DefaultNotificationBuffer = 16

	// writeTimeout bounds frames the service sends on its own behalf
	// (AUTH replies, CLOSE on disconnect).
	writeTimeout = 5 * time.Second
)

// URIStore persists the last connection URI so it can be restored.
type URIStore interface {
	SaveConnectionURI(uri string) error
	LoadConnectionURI() (string, error)
	ClearConnectionURI() error
}

// Config holds configuration for creating a Service.
type Config struct {
	Logger *log.Logger
	// Store is optional; without it nothing is persisted and Restore is a no-op.
	Store URIStore

	RequestTimeout time.Duration
	InfoTimeout    time.Duration
	// KeepAliveInterval is the relay ping interval. Zero uses the relayws
	// default, negative disables pings.
	KeepAliveInterval time.Duration
	HTTPClient        *http.Client

	// NoInfoProbe skips the get_info request issued after connecting.
	NoInfoProbe bool

	NotificationBuffer int
	// OnNotification is called from the read loop for every notification.
	// It must not block and must not call Disconnect or Close.
	OnNotification func(Notification)
}

// session is everything owned by one connection. A new session is created
// on every Connect and torn down as a unit.
type session struct {
	desc      *Descriptor
	secret    []byte
	clientPub string
	conn      *relayws.Conn
	subID     string
	pending   *pendingTable
	cancel    context.CancelFunc
	done      chan struct{} // closed when the session ends
}

// Service is a wallet-connect client bound to at most one wallet at a time.
type Service struct {
	cfg           Config
	logger        *log.Logger
	notifications chan Notification

	mu    sync.Mutex
	state ConnectionState
	sess  *session
	// attempt is the session of the Connect call currently dialing. Only
	// that call may install it; teardown clears it.
	attempt *session
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewService creates a disconnected Service.
func NewService(cfg Config) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = DefaultInfoTimeout
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = DefaultNotificationBuffer
	}
	return &Service{
		cfg:           cfg,
		logger:        cfg.Logger,
		notifications: make(chan Notification, cfg.NotificationBuffer),
		state:         ConnectionState{State: Disconnected},
	}
}

// State returns a snapshot of the connection state.
func (s *Service) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Notifications returns the channel notifications are delivered on.
// Delivery is best-effort: when the buffer is full, notifications are dropped.
func (s *Service) Notifications() <-chan Notification {
	return s.notifications
}

// Done returns a channel that is closed when the current connection ends,
// whether by Disconnect, Close or loss of the relay channel. Without a
// connection the returned channel is already closed.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return closedDone
	}
	return s.sess.done
}

// PendingCount returns the number of requests awaiting a response.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return 0
	}
	return sess.pending.len()
}

// Connect parses uri, opens the relay channel and subscribes to the
// wallet's events. A malformed uri fails without changing state.
func (s *Service) Connect(ctx context.Context, uri string) error {
	desc, err := ParseConnectionURI(uri)
	if err != nil {
		return err
	}
	secret, err := nostrkey.DecodeHex(desc.Secret)
	if err != nil {
		return fmt.Errorf("walletservice: connect: secret: %w", err)
	}
	clientPub, err := nostrkey.PublicKeyHex(secret)
	if err != nil {
		return fmt.Errorf("walletservice: connect: secret: %w", err)
	}

	sess := &session{
		desc:      desc,
		secret:    secret,
		clientPub: clientPub,
		subID:     uuid.NewString(),
		pending:   newPendingTable(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.state.State == Connecting || s.state.State == Connected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = ConnectionState{
		State:        Connecting,
		WalletPubKey: desc.WalletPubKey,
		ClientPubKey: clientPub,
		RelayURL:     desc.RelayURL,
	}
	s.attempt = sess
	s.mu.Unlock()
	logf(s.logger, "walletservice: connecting relay=%s wallet=%s", desc.RelayURL, short(desc.WalletPubKey))

	conn, err := relayws.Dial(ctx, desc.RelayURL, s.dialOptions()...)
	if err != nil {
		return s.connectFailed(sess, fmt.Errorf("walletservice: connect: %w", err))
	}
	sess.conn = conn

	filter := relayws.Filter{
		Kinds:   []int{nostrevent.KindResponse, nostrevent.KindNotification, nostrevent.KindInfo},
		Authors: []string{desc.WalletPubKey},
		PTags:   []string{clientPub},
	}
	if err := conn.Subscribe(ctx, sess.subID, filter); err != nil {
		conn.CloseNow()
		return s.connectFailed(sess, fmt.Errorf("walletservice: subscribe: %w", err))
	}

	s.mu.Lock()
	if s.attempt != sess {
		// Disconnect ran while we were dialing, possibly followed by
		// another Connect that now owns the state.
		s.mu.Unlock()
		conn.CloseNow()
		return ErrDisconnected
	}
	s.attempt = nil
	readCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	s.sess = sess
	s.state.State = Connected
	// Saved under the lock so a concurrent Disconnect clears it afterwards.
	if s.cfg.Store != nil {
		if err := s.cfg.Store.SaveConnectionURI(desc.String()); err != nil {
			logf(s.logger, "walletservice: persist connection uri: %v", err)
		}
	}
	s.mu.Unlock()
	logf(s.logger, "walletservice: connected sub=%s", sess.subID)

	go s.readLoop(readCtx, sess)

	if !s.cfg.NoInfoProbe {
		go s.probeInfo()
	}
	return nil
}

func (s *Service) dialOptions() []relayws.Option {
	opts := []relayws.Option{relayws.WithLogger(s.logger)}
	switch {
	case s.cfg.KeepAliveInterval < 0:
		opts = append(opts, relayws.WithKeepAliveInterval(0))
	case s.cfg.KeepAliveInterval > 0:
		opts = append(opts, relayws.WithKeepAliveInterval(s.cfg.KeepAliveInterval))
	}
	if s.cfg.HTTPClient != nil {
		opts = append(opts, relayws.WithHTTPClient(s.cfg.HTTPClient))
	}
	return opts
}

func (s *Service) connectFailed(sess *session, err error) error {
	s.mu.Lock()
	if s.attempt == sess {
		s.attempt = nil
		s.state.State = Error
		s.state.LastError = err
	}
	s.mu.Unlock()
	logf(s.logger, "%v", err)
	return err
}

// Restore reconnects with the persisted URI, if any. It makes a single
// attempt and reports whether a URI was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.cfg.Store == nil {
		return false, nil
	}
	uri, err := s.cfg.Store.LoadConnectionURI()
	if err != nil {
		return false, fmt.Errorf("walletservice: restore: %w", err)
	}
	if uri == "" {
		return false, nil
	}
	logf(s.logger, "walletservice: restoring saved connection")
	return true, s.Connect(ctx, uri)
}

// Disconnect rejects all outstanding requests with ErrDisconnected, closes
// the subscription and channel, and forgets the persisted URI.
func (s *Service) Disconnect() error {
	s.teardown()
	if s.cfg.Store != nil {
		if err := s.cfg.Store.ClearConnectionURI(); err != nil {
			return fmt.Errorf("walletservice: clear connection uri: %w", err)
		}
	}
	return nil
}

// Close tears the connection down like Disconnect but keeps the persisted
// URI for a later Restore.
func (s *Service) Close() error {
	s.teardown()
	return nil
}

func (s *Service) teardown() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.attempt = nil
	s.state = ConnectionState{State: Disconnected}
	s.mu.Unlock()
	if sess == nil {
		return
	}
	defer close(sess.done)

	if n := sess.pending.drain(ErrDisconnected); n > 0 {
		logf(s.logger, "walletservice: rejected %d pending requests", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	if err := sess.conn.Unsubscribe(ctx, sess.subID); err != nil {
		logf(s.logger, "walletservice: close subscription: %v", err)
	}
	cancel()
	sess.conn.Close()
	sess.cancel()
	logf(s.logger, "walletservice: disconnected")
}

// lost handles the end of a session that was not requested by the caller.
func (s *Service) lost(sess *session, cause error) {
	s.mu.Lock()
	if s.sess != sess {
		s.mu.Unlock()
		return
	}
	s.sess = nil
	if relayws.IsNormalClosure(cause) {
		s.state = ConnectionState{State: Disconnected}
	} else {
		s.state.State = Error
		s.state.LastError = cause
	}
	s.mu.Unlock()

	logf(s.logger, "walletservice: channel lost: %v", cause)
	sess.pending.drain(ErrDisconnected)
	sess.conn.CloseNow()
	sess.cancel()
	close(sess.done)
}

// updateState applies fn to the connection state if sess is still the
// current session. Results of a request that outlived its session are
// dropped.
func (s *Service) updateState(sess *session, fn func(*ConnectionState)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return false
	}
	fn(&s.state)
	return true
}

func (s *Service) readLoop(ctx context.Context, sess *session) {
	for {
		f, err := sess.conn.ReadFrame(ctx)
		if err != nil {
			var bad *relayws.BadFrameError
			if errors.As(err, &bad) {
				logf(s.logger, "walletservice: skipping bad frame: %v", err)
				continue
			}
			s.lost(sess, err)
			return
		}
		s.handleFrame(sess, f)
	}
}

func (s *Service) handleFrame(sess *session, f *relayws.Frame) {
	switch f.Type {
	case relayws.FrameEvent:
		if f.SubscriptionID != sess.subID {
			logf(s.logger, "walletservice: event for unknown subscription %s", f.SubscriptionID)
			return
		}
		s.handleEvent(sess, f.Event)
	case relayws.FrameOK:
		if f.Accepted {
			logf(s.logger, "walletservice: relay accepted %s", short(f.EventID))
			return
		}
		logf(s.logger, "walletservice: relay rejected %s: %s", short(f.EventID), f.Message)
		sess.pending.settle(f.EventID, outcome{err: fmt.Errorf("%w: %s", ErrRelayRejected, f.Message)})
	case relayws.FrameEOSE:
		logf(s.logger, "walletservice: end of stored events sub=%s", f.SubscriptionID)
	case relayws.FrameNotice:
		logf(s.logger, "walletservice: relay notice: %s", f.Message)
	case relayws.FrameClosed:
		if f.SubscriptionID == sess.subID {
			s.lost(sess, fmt.Errorf("walletservice: subscription closed by relay: %s", f.Message))
		}
	case relayws.FrameAuth:
		s.handleAuth(sess, f.Challenge)
	default:
		logf(s.logger, "walletservice: ignoring %s frame", f.Type)
	}
}

// handleAuth answers a relay challenge with a signed client-auth event.
func (s *Service) handleAuth(sess *session, challenge string) {
	tags := nostrevent.Tags{{"relay", sess.desc.RelayURL}, {"challenge", challenge}}
	ev, err := nostrevent.Build(nostrevent.KindClientAuth, tags, "", sess.secret)
	if err != nil {
		logf(s.logger, "walletservice: build auth: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := sess.conn.Authenticate(ctx, ev); err != nil {
		logf(s.logger, "walletservice: send auth: %v", err)
		return
	}
	logf(s.logger, "walletservice: answered auth challenge")
}

// handleEvent verifies an incoming event and routes it by kind. Anything
// that fails verification or decryption is dropped.
func (s *Service) handleEvent(sess *session, ev *nostrevent.Event) {
	if ev.PubKey != sess.desc.WalletPubKey {
		logf(s.logger, "walletservice: discarding event %s from %s", short(ev.ID), short(ev.PubKey))
		return
	}
	if err := ev.Verify(); err != nil {
		logf(s.logger, "walletservice: discarding event %s: %v", short(ev.ID), err)
		return
	}

	switch ev.Kind {
	case nostrevent.KindResponse:
		s.handleResponse(sess, ev)
	case nostrevent.KindNotification:
		s.handleNotification(sess, ev)
	case nostrevent.KindInfo:
		s.handleInfo(sess, ev)
	default:
		logf(s.logger, "walletservice: ignoring event kind %d", ev.Kind)
	}
}

func (s *Service) handleResponse(sess *session, ev *nostrevent.Event) {
	reqID := ev.Tags.Value("e")
	if sess.pending.method(reqID) == "" {
		logf(s.logger, "walletservice: response %s for unknown request %s", short(ev.ID), short(reqID))
		return
	}
	plaintext, err := ev.Decrypt(sess.secret)
	if err != nil {
		logf(s.logger, "walletservice: discarding response %s: %v", short(ev.ID), err)
		return
	}
	var resp response
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		logf(s.logger, "walletservice: discarding response %s: %v", short(ev.ID), err)
		return
	}
	o := outcome{resultType: resp.ResultType, result: resp.Result}
	if resp.Error != nil {
		o.err = resp.Error
	}
	sess.pending.settle(reqID, o)
}

func (s *Service) handleNotification(sess *session, ev *nostrevent.Event) {
	plaintext, err := ev.Decrypt(sess.secret)
	if err != nil {
		logf(s.logger, "walletservice: discarding notification %s: %v", short(ev.ID), err)
		return
	}
	var content notificationContent
	if err := json.Unmarshal([]byte(plaintext), &content); err != nil {
		logf(s.logger, "walletservice: discarding notification %s: %v", short(ev.ID), err)
		return
	}
	n := Notification{
		Type:        content.NotificationType,
		Transaction: content.Notification,
		EventID:     ev.ID,
		CreatedAt:   ev.CreatedTime(),
		ReceivedAt:  time.Now(),
	}
	logf(s.logger, "walletservice: notification %s amount=%d", n.Type, n.Transaction.Amount)

	if s.cfg.OnNotification != nil {
		s.cfg.OnNotification(n)
	}
	select {
	case s.notifications <- n:
	default:
		logf(s.logger, "walletservice: notification buffer full, dropping %s", short(ev.ID))
	}
}

// handleInfo records the capabilities from a wallet info event. Its
// content is a plain space-separated method list.
func (s *Service) handleInfo(sess *session, ev *nostrevent.Event) {
	methods := strings.Fields(ev.Content)
	s.updateState(sess, func(st *ConnectionState) {
		st.Capabilities = methods
		st.NotificationTypes = strings.Fields(ev.Tags.Value("notifications"))
		st.Encryption = strings.Fields(ev.Tags.Value("encryption"))
	})
	logf(s.logger, "walletservice: wallet info: %d methods", len(methods))
}

func (s *Service) probeInfo() {
	if _, err := s.getInfo(context.Background(), s.cfg.InfoTimeout); err != nil {
		logf(s.logger, "walletservice: info probe: %v", err)
	}
}

// sendRequest publishes a request and waits for its outcome. It returns
// the raw result of a successful response and the session it was sent on.
func (s *Service) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, *session, error) {
	s.mu.Lock()
	sess := s.sess
	connected := s.state.State == Connected
	s.mu.Unlock()
	if sess == nil || !connected {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConnected, method)
	}

	ev, err := nostrevent.BuildRequest(method, params, sess.secret, sess.desc.WalletPubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("walletservice: %s: %w", method, err)
	}
	// Register before publishing so a fast response cannot be missed.
	p, err := sess.pending.add(ev.ID, method, timeout)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.conn.Publish(ctx, ev); err != nil {
		sess.pending.remove(ev.ID)
		return nil, nil, fmt.Errorf("walletservice: %s: %w", method, err)
	}
	logf(s.logger, "walletservice: sent %s id=%s", method, short(ev.ID))

	select {
	case o := <-p.done:
		if o.err != nil {
			return nil, nil, o.err
		}
		if o.resultType != "" && o.resultType != method {
			return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResult, o.resultType, method)
		}
		return o.result, sess, nil
	case <-ctx.Done():
		sess.pending.remove(ev.ID)
		return nil, nil, ctx.Err()
	}
}

// call runs sendRequest with the request timeout and decodes the result into out.
func (s *Service) call(ctx context.Context, method string, params, out any) (*session, error) {
	return s.callWithTimeout(ctx, method, params, out, s.cfg.RequestTimeout)
}

func (s *Service) callWithTimeout(ctx context.Context, method string, params, out any, timeout time.Duration) (*session, error) {
	raw, sess, err := s.sendRequest(ctx, method, params, timeout)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s response has no result", ErrUnexpectedResult, method)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("walletservice: %s: decode result: %w", method, err)
	}
	return sess, nil
}

// short abbreviates hex ids and keys for logging.
func short(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// logf logs a message if the logger is non-nil.
func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
