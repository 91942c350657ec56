package walletservice

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gwillem/nwc-go/internal/nostrevent"
	"github.com/gwillem/nwc-go/internal/nostrkey"
)

// walletRequest is a request as seen by the fake wallet.
type walletRequest struct {
	ID     string
	Method string
	Params json.RawMessage
	Author string
}

// fakeWallet is a relay and a wallet in one: it accepts a single client
// connection, records its subscription, decrypts requests and signs
// responses with a real key.
type fakeWallet struct {
	t      *testing.T
	srv    *httptest.Server
	secret []byte
	pub    string

	clientSecret []byte
	clientPub    string

	// auto, if set, answers requests directly. Returning ok=false passes
	// the request on to the requests channel.
	auto func(req walletRequest) (result any, ok bool)

	// firstAcceptDelay holds back the first connection's upgrade. That
	// connection is accepted but otherwise ignored.
	firstAcceptDelay time.Duration
	accepts          atomic.Int32

	requests   chan walletRequest
	subscribed chan []json.RawMessage
	closes     chan string
	auths      chan *nostrevent.Event

	mu    sync.Mutex
	ws    *websocket.Conn
	subID string
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	secret, err := nostrkey.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	pub, _ := nostrkey.PublicKeyHex(secret)
	clientSecret, err := nostrkey.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	clientPub, _ := nostrkey.PublicKeyHex(clientSecret)

	fw := &fakeWallet{
		t:            t,
		secret:       secret,
		pub:          pub,
		clientSecret: clientSecret,
		clientPub:    clientPub,
		requests:     make(chan walletRequest, 16),
		subscribed:   make(chan []json.RawMessage, 4),
		closes:       make(chan string, 4),
		auths:        make(chan *nostrevent.Event, 4),
	}
	fw.srv = httptest.NewServer(http.HandlerFunc(fw.serve))
	t.Cleanup(fw.srv.Close)
	return fw
}

func (fw *fakeWallet) relayURL() string {
	return "ws" + strings.TrimPrefix(fw.srv.URL, "http")
}

func (fw *fakeWallet) uri() string {
	return "nostr+walletconnect://" + fw.pub + "?relay=" + url.QueryEscape(fw.relayURL()) +
		"&secret=" + hex.EncodeToString(fw.clientSecret)
}

func (fw *fakeWallet) serve(w http.ResponseWriter, r *http.Request) {
	if fw.accepts.Add(1) == 1 && fw.firstAcceptDelay > 0 {
		time.Sleep(fw.firstAcceptDelay)
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		for {
			if _, _, err := ws.Read(r.Context()); err != nil {
				return
			}
		}
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		fw.t.Errorf("accept: %v", err)
		return
	}
	defer ws.CloseNow()
	fw.mu.Lock()
	fw.ws = ws
	fw.mu.Unlock()

	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
			fw.t.Errorf("bad client frame %s", data)
			return
		}
		var label string
		json.Unmarshal(frame[0], &label)
		switch label {
		case "REQ":
			var subID string
			json.Unmarshal(frame[1], &subID)
			fw.mu.Lock()
			fw.subID = subID
			fw.mu.Unlock()
			fw.subscribed <- frame
		case "CLOSE":
			var subID string
			json.Unmarshal(frame[1], &subID)
			fw.closes <- subID
		case "AUTH":
			var ev nostrevent.Event
			json.Unmarshal(frame[1], &ev)
			fw.auths <- &ev
		case "EVENT":
			var ev nostrevent.Event
			if err := json.Unmarshal(frame[1], &ev); err != nil {
				fw.t.Errorf("event: %v", err)
				return
			}
			fw.handleRequest(&ev)
		}
	}
}

func (fw *fakeWallet) handleRequest(ev *nostrevent.Event) {
	if err := ev.Verify(); err != nil {
		fw.t.Errorf("request does not verify: %v", err)
		return
	}
	plaintext, err := ev.Decrypt(fw.secret)
	if err != nil {
		fw.t.Errorf("decrypt request: %v", err)
		return
	}
	var payload struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		fw.t.Errorf("request payload: %v", err)
		return
	}
	req := walletRequest{ID: ev.ID, Method: payload.Method, Params: payload.Params, Author: ev.PubKey}
	if fw.auto != nil {
		if result, ok := fw.auto(req); ok {
			fw.respond(req, result)
			return
		}
	}
	fw.requests <- req
}

// nextRequest waits for a request that was not answered automatically.
func (fw *fakeWallet) nextRequest() walletRequest {
	fw.t.Helper()
	select {
	case req := <-fw.requests:
		return req
	case <-time.After(5 * time.Second):
		fw.t.Fatal("timed out waiting for request")
		return walletRequest{}
	}
}

func (fw *fakeWallet) respond(req walletRequest, result any) {
	fw.sendEncrypted(nostrevent.KindResponse, req.ID, map[string]any{
		"result_type": req.Method,
		"result":      result,
	}, fw.secret)
}

func (fw *fakeWallet) respondError(req walletRequest, code, message string) {
	fw.sendEncrypted(nostrevent.KindResponse, req.ID, map[string]any{
		"result_type": req.Method,
		"error":       map[string]string{"code": code, "message": message},
	}, fw.secret)
}

func (fw *fakeWallet) notify(typ string, tx Transaction) {
	fw.sendEncrypted(nostrevent.KindNotification, "", map[string]any{
		"notification_type": typ,
		"notification":      tx,
	}, fw.secret)
}

// sendEncrypted signs content with signer and delivers it on the client's
// subscription. It may run on the server goroutine, so it never calls Fatal.
func (fw *fakeWallet) sendEncrypted(kind int, reqID string, content any, signer []byte) {
	data, err := json.Marshal(content)
	if err != nil {
		fw.t.Errorf("marshal: %v", err)
		return
	}
	tags := nostrevent.Tags{{"p", fw.clientPub}}
	if reqID != "" {
		tags = append(tags, nostrevent.Tag{"e", reqID})
	}
	ev, err := nostrevent.BuildEncrypted(kind, tags, string(data), signer, fw.clientPub)
	if err != nil {
		fw.t.Errorf("build: %v", err)
		return
	}
	fw.sendEvent(ev)
}

func (fw *fakeWallet) sendEvent(ev *nostrevent.Event) {
	fw.mu.Lock()
	subID := fw.subID
	fw.mu.Unlock()
	fw.sendFrame([]any{"EVENT", subID, ev})
}

func (fw *fakeWallet) sendFrame(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fw.t.Errorf("marshal: %v", err)
		return
	}
	fw.mu.Lock()
	ws := fw.ws
	fw.mu.Unlock()
	if ws == nil {
		fw.t.Errorf("no client connected")
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		fw.t.Errorf("write: %v", err)
	}
}

// dropClient closes the client connection without a close handshake.
func (fw *fakeWallet) dropClient() {
	fw.mu.Lock()
	ws := fw.ws
	fw.mu.Unlock()
	ws.CloseNow()
}

func (fw *fakeWallet) waitSubscribed() []json.RawMessage {
	fw.t.Helper()
	select {
	case f := <-fw.subscribed:
		return f
	case <-time.After(5 * time.Second):
		fw.t.Fatal("timed out waiting for subscription")
		return nil
	}
}

// memStore is an in-memory URIStore.
type memStore struct {
	mu  sync.Mutex
	uri string
}

func (m *memStore) SaveConnectionURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uri = uri
	return nil
}

func (m *memStore) LoadConnectionURI() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uri, nil
}

func (m *memStore) ClearConnectionURI() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uri = ""
	return nil
}

func (m *memStore) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uri
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
