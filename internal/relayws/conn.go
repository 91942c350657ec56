// Package relayws provides JSON-framed WebSocket communication with a
// relay: publishing events, managing subscriptions and reading frames.
package relayws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gwillem/nwc-go/internal/nostrevent"
)

const (
	defaultKeepAliveInterval = 30 * time.Second
	defaultKeepAliveTimeout  = 20 * time.Second

	// Relays can forward large events; the library default of 32 KiB is too small.
	readLimit = 1 << 20
)

// Conn wraps a WebSocket connection to a single relay.
type Conn struct {
	ws         *websocket.Conn
	url        string
	logger     *log.Logger
	httpClient *http.Client

	keepAliveInterval time.Duration
	keepAliveTimeout  time.Duration

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithKeepAliveInterval sets the interval between pings. Zero disables pings.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Conn) { c.keepAliveInterval = d }
}

// WithKeepAliveTimeout sets how long to wait for a pong before the
// connection is considered dead.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(c *Conn) { c.keepAliveTimeout = d }
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(l *log.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithHTTPClient sets the HTTP client used for the upgrade request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Conn) { c.httpClient = hc }
}

// Dial opens a WebSocket connection to the relay at url. Pings start
// immediately; they need a concurrent ReadFrame loop to be answered.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	c := &Conn{
		url:               url,
		keepAliveInterval: defaultKeepAliveInterval,
		keepAliveTimeout:  defaultKeepAliveTimeout,
	}
	for _, o := range opts {
		o(c)
	}

	dialOpts := &websocket.DialOptions{HTTPClient: c.httpClient}
	ws, _, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("relayws: dial %s: %w", url, err)
	}
	ws.SetReadLimit(readLimit)
	c.ws = ws

	kaCtx, kaCancel := context.WithCancel(context.Background())
	c.cancel = kaCancel
	if c.keepAliveInterval > 0 {
		go c.keepAliveLoop(kaCtx)
	}
	logf(c.logger, "relay connected url=%s", url)
	return c, nil
}

// URL returns the relay URL this connection was dialed with.
func (c *Conn) URL() string { return c.url }

// ReadFrame reads and parses the next relay message. Frames that fail to
// parse are returned as *BadFrameError so callers can skip them without
// treating the channel as broken.
func (c *Conn) ReadFrame(ctx context.Context) (*Frame, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("relayws: read: %w", err)
	}
	f, err := ParseFrame(data)
	if err != nil {
		return nil, &BadFrameError{Err: err}
	}
	return f, nil
}

// Publish sends ["EVENT", ev].
func (c *Conn) Publish(ctx context.Context, ev *nostrevent.Event) error {
	return c.writeJSON(ctx, []any{"EVENT", ev})
}

// Subscribe sends ["REQ", subID, filters...].
func (c *Conn) Subscribe(ctx context.Context, subID string, filters ...Filter) error {
	frame := []any{"REQ", subID}
	for _, f := range filters {
		frame = append(frame, f)
	}
	return c.writeJSON(ctx, frame)
}

// Unsubscribe sends ["CLOSE", subID].
func (c *Conn) Unsubscribe(ctx context.Context, subID string) error {
	return c.writeJSON(ctx, []any{"CLOSE", subID})
}

// Authenticate sends ["AUTH", ev] in answer to a relay challenge.
func (c *Conn) Authenticate(ctx context.Context, ev *nostrevent.Event) error {
	return c.writeJSON(ctx, []any{"AUTH", ev})
}

func (c *Conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relayws: marshal: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("relayws: write: %w", err)
	}
	return nil
}

// Close stops pings, sends a normal closure frame and closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close(websocket.StatusNormalClosure, "")
		logf(c.logger, "relay closed url=%s", c.url)
	})
	return err
}

// CloseNow closes the connection immediately without a close frame.
func (c *Conn) CloseNow() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.CloseNow()
	})
	return err
}

func (c *Conn) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(c.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.keepAliveTimeout)
			start := time.Now()
			err := c.ws.Ping(pingCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				// The pending ReadFrame fails once the socket is gone, which
				// is how the owner learns about the dead channel.
				logf(c.logger, "relay keep-alive failed url=%s: %v", c.url, err)
				c.CloseNow()
				return
			}
			logf(c.logger, "relay keep-alive OK rtt=%s", time.Since(start))
		}
	}
}

// IsNormalClosure reports whether err is the result of a clean close
// handshake (either side), as opposed to a transport failure.
func IsNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// BadFrameError wraps a frame that could not be parsed.
type BadFrameError struct {
	Err error
}

func (e *BadFrameError) Error() string { return e.Err.Error() }
func (e *BadFrameError) Unwrap() error { return e.Err }

// logf logs a message if the logger is non-nil.
func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
