package nwc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gwillem/nwc-go/internal/nostrevent"
	"github.com/gwillem/nwc-go/internal/nostrkey"
)

// testWallet is a relay that hosts a wallet answering get_balance and
// get_info, and can push notifications to the connected client.
type testWallet struct {
	t         *testing.T
	srv       *httptest.Server
	secret    []byte
	pub       string
	clientSec []byte
	clientPub string

	mu    sync.Mutex
	ws    *websocket.Conn
	subID string
	subs  chan struct{}
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()
	secret, err := nostrkey.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	clientSec, err := nostrkey.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	w := &testWallet{t: t, secret: secret, clientSec: clientSec, subs: make(chan struct{}, 4)}
	w.pub, _ = nostrkey.PublicKeyHex(secret)
	w.clientPub, _ = nostrkey.PublicKeyHex(clientSec)
	w.srv = httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *testWallet) uri() string {
	relay := "ws" + strings.TrimPrefix(w.srv.URL, "http")
	return "nostr+walletconnect://" + w.pub + "?relay=" + url.QueryEscape(relay) +
		"&secret=" + hex.EncodeToString(w.clientSec) + "&lud16=test%40example.com"
}

func (w *testWallet) serve(rw http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(rw, r, nil)
	if err != nil {
		w.t.Errorf("accept: %v", err)
		return
	}
	defer ws.CloseNow()
	w.mu.Lock()
	w.ws = ws
	w.mu.Unlock()

	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var label string
		json.Unmarshal(frame[0], &label)
		switch label {
		case "REQ":
			w.mu.Lock()
			json.Unmarshal(frame[1], &w.subID)
			w.mu.Unlock()
			w.subs <- struct{}{}
		case "EVENT":
			var ev nostrevent.Event
			if err := json.Unmarshal(frame[1], &ev); err != nil {
				continue
			}
			w.answer(&ev)
		}
	}
}

func (w *testWallet) answer(ev *nostrevent.Event) {
	plaintext, err := ev.Decrypt(w.secret)
	if err != nil {
		w.t.Errorf("decrypt: %v", err)
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	json.Unmarshal([]byte(plaintext), &req)

	resp := map[string]any{"result_type": req.Method}
	switch req.Method {
	case "get_balance":
		resp["result"] = map[string]any{"balance": 42000}
	case "get_info":
		resp["result"] = map[string]any{"alias": "test", "methods": []string{"get_info", "get_balance"}}
	default:
		resp["error"] = map[string]string{"code": "NOT_IMPLEMENTED", "message": req.Method}
	}
	w.send(nostrevent.KindResponse, nostrevent.Tags{{"p", w.clientPub}, {"e", ev.ID}}, resp)
}

func (w *testWallet) send(kind int, tags nostrevent.Tags, content any) {
	data, _ := json.Marshal(content)
	ev, err := nostrevent.BuildEncrypted(kind, tags, string(data), w.secret, w.clientPub)
	if err != nil {
		w.t.Errorf("build: %v", err)
		return
	}
	w.mu.Lock()
	ws, subID := w.ws, w.subID
	w.mu.Unlock()
	frame, _ := json.Marshal([]any{"EVENT", subID, ev})
	if err := ws.Write(context.Background(), websocket.MessageText, frame); err != nil {
		w.t.Errorf("write: %v", err)
	}
}

func (w *testWallet) waitSubscribed() {
	w.t.Helper()
	select {
	case <-w.subs:
	case <-time.After(5 * time.Second):
		w.t.Fatal("client did not subscribe")
	}
}

func newTestClient(t *testing.T, dbPath string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDBPath(dbPath), WithKeepAliveInterval(-1)}, opts...)
	c := NewClient(opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientConnectAndBalance(t *testing.T) {
	w := newTestWallet(t)
	c := newTestClient(t, filepath.Join(t.TempDir(), "nwc.db"))

	ctx := context.Background()
	if err := c.Connect(ctx, w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()

	bal, err := c.GetBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Balance != 42000 {
		t.Fatalf("balance: got %d", bal.Balance)
	}

	// The info probe runs in the background after connecting.
	deadline := time.Now().Add(5 * time.Second)
	for !c.State().Supports("get_balance") {
		if time.Now().After(deadline) {
			t.Fatal("capabilities never populated")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err = c.PayInvoice(ctx, "lnbc1", 0)
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != "NOT_IMPLEMENTED" {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestClientRestoreAcrossInstances(t *testing.T) {
	w := newTestWallet(t)
	dbPath := filepath.Join(t.TempDir(), "nwc.db")
	ctx := context.Background()

	c1 := NewClient(WithDBPath(dbPath), WithKeepAliveInterval(-1))
	if err := c1.Connect(ctx, w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	c2 := newTestClient(t, dbPath)
	found, err := c2.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected saved connection")
	}
	w.waitSubscribed()
	if st := c2.State(); st.State != Connected || st.WalletPubKey != w.pub {
		t.Fatalf("state: %+v", st)
	}

	// Disconnect forgets the connection.
	if err := c2.Disconnect(); err != nil {
		t.Fatal(err)
	}
	c3 := newTestClient(t, dbPath)
	found, err = c3.Restore(ctx)
	if err != nil || found {
		t.Fatalf("after disconnect: found=%v err=%v", found, err)
	}
}

func TestClientNotificationLog(t *testing.T) {
	w := newTestWallet(t)
	handled := make(chan Notification, 1)
	c := newTestClient(t, filepath.Join(t.TempDir(), "nwc.db"),
		WithNotificationHandler(func(n Notification) { handled <- n }))

	if err := c.Connect(context.Background(), w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()

	w.send(nostrevent.KindNotification, nostrevent.Tags{{"p", w.clientPub}}, map[string]any{
		"notification_type": NotificationPaymentReceived,
		"notification":      map[string]any{"type": "incoming", "amount": 1500, "payment_hash": "ph"},
	})

	select {
	case n := <-c.Notifications():
		if n.Type != NotificationPaymentReceived || n.Transaction.Amount != 1500 {
			t.Fatalf("got %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification on channel")
	}
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	// The handler runs after the notification was logged.
	logged, err := c.RecentNotifications(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 1 {
		t.Fatalf("logged %d notifications", len(logged))
	}
	if logged[0].Transaction.PaymentHash != "ph" || logged[0].Type != NotificationPaymentReceived {
		t.Fatalf("logged: %+v", logged[0])
	}
}

func TestClientNotificationLimit(t *testing.T) {
	w := newTestWallet(t)
	handled := make(chan Notification, 1)
	c := newTestClient(t, filepath.Join(t.TempDir(), "nwc.db"),
		WithNotificationLimit(2),
		WithNotificationHandler(func(n Notification) { handled <- n }))

	if err := c.Connect(context.Background(), w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()

	for i := 1; i <= 3; i++ {
		w.send(nostrevent.KindNotification, nostrevent.Tags{{"p", w.clientPub}}, map[string]any{
			"notification_type": NotificationPaymentReceived,
			"notification":      map[string]any{"type": "incoming", "amount": i * 1000, "payment_hash": fmt.Sprintf("ph%d", i)},
		})
		select {
		case <-handled:
		case <-time.After(5 * time.Second):
			t.Fatalf("notification %d not handled", i)
		}
		// Distinct arrival times keep the log order deterministic.
		time.Sleep(5 * time.Millisecond)
	}

	logged, err := c.RecentNotifications(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 2 {
		t.Fatalf("logged %d notifications, want 2", len(logged))
	}
	if logged[0].Transaction.PaymentHash != "ph3" || logged[1].Transaction.PaymentHash != "ph2" {
		t.Fatalf("kept %s and %s", logged[0].Transaction.PaymentHash, logged[1].Transaction.PaymentHash)
	}
}

func TestClientDoneOnRelayDrop(t *testing.T) {
	w := newTestWallet(t)
	c := newTestClient(t, filepath.Join(t.TempDir(), "nwc.db"))

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed without a connection")
	}

	if err := c.Connect(context.Background(), w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()
	done := c.Done()
	select {
	case <-done:
		t.Fatal("Done closed while connected")
	default:
	}

	w.mu.Lock()
	ws := w.ws
	w.mu.Unlock()
	ws.CloseNow()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after the relay dropped the connection")
	}
	if st := c.State(); st.State != Error || st.LastError == nil {
		t.Fatalf("state: %+v", st)
	}
}

type memStorage struct {
	mu  sync.Mutex
	uri string
}

func (m *memStorage) SaveConnectionURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uri = uri
	return nil
}

func (m *memStorage) LoadConnectionURI() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uri, nil
}

func (m *memStorage) ClearConnectionURI() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uri = ""
	return nil
}

func TestClientWithStorage(t *testing.T) {
	w := newTestWallet(t)
	ms := &memStorage{}
	c := NewClient(WithStorage(ms), WithKeepAliveInterval(-1))
	t.Cleanup(func() { c.Close() })

	if err := c.Connect(context.Background(), w.uri()); err != nil {
		t.Fatal(err)
	}
	w.waitSubscribed()

	saved, _ := ms.LoadConnectionURI()
	d, err := ParseConnectionURI(saved)
	if err != nil {
		t.Fatal(err)
	}
	if d.WalletPubKey != w.pub || d.LightningAddress != "test@example.com" {
		t.Fatalf("saved descriptor: %+v", d)
	}
	if _, err := c.RecentNotifications(5); !errors.Is(err, ErrNoNotificationLog) {
		t.Fatalf("expected ErrNoNotificationLog, got %v", err)
	}
}

func TestClientErrorsBeforeConnect(t *testing.T) {
	c := newTestClient(t, filepath.Join(t.TempDir(), "nwc.db"))
	ctx := context.Background()

	if _, err := c.GetInfo(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := c.Connect(ctx, "nostr+walletconnect://nope"); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if st := c.State(); st.State != Disconnected {
		t.Fatalf("state: %s", st.State)
	}
}

func TestKeyHelpers(t *testing.T) {
	kp, err := KeyPairFromSecret("0000000000000000000000000000000000000000000000000000000000000003")
	if err != nil {
		t.Fatal(err)
	}
	if kp.Public != "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9" {
		t.Fatalf("public: %s", kp.Public)
	}

	nsec, err := kp.Nsec()
	if err != nil {
		t.Fatal(err)
	}
	again, err := KeyPairFromSecret(nsec)
	if err != nil {
		t.Fatal(err)
	}
	if *again != *kp {
		t.Fatalf("nsec round trip: %+v", again)
	}

	npub, err := kp.Npub()
	if err != nil {
		t.Fatal(err)
	}
	if !LooksLikeIdentifier(npub) {
		t.Fatalf("%s should look valid", npub)
	}
	prefix, keyHex, err := DecodeIdentifier(npub)
	if err != nil {
		t.Fatal(err)
	}
	if prefix != PublicKeyPrefix || keyHex != kp.Public {
		t.Fatalf("decode: %s %s", prefix, keyHex)
	}
	enc, err := EncodeIdentifier(PublicKeyPrefix, kp.Public)
	if err != nil || enc != npub {
		t.Fatalf("encode: %s %v", enc, err)
	}

	gen, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if len(gen.Secret) != 64 || len(gen.Public) != 64 {
		t.Fatalf("generated: %+v", gen)
	}

	// A flipped character breaks the checksum.
	last := byte('q')
	if npub[len(npub)-1] == 'q' {
		last = 'p'
	}
	bad := npub[:len(npub)-1] + string(last)
	if _, _, err := DecodeIdentifier(bad); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for %s, got %v", bad, err)
	}
}
