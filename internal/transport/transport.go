package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/martinsuchenak/netpulse/internal/log"
)

const (
	// DefaultDecodeAlertThreshold is how many consecutive undecodable frames
	// trigger a warning.
	DefaultDecodeAlertThreshold = 10

	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxMessageSize   = 1 << 20
	closeWriteTimeout       = time.Second
)

var errMissingType = errors.New("message has no type")

// State is the connection state of the push channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Message is one decoded push frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives every decoded message, on the transport's read goroutine.
type Handler func(Message)

// Config describes the push endpoint and retry policy.
type Config struct {
	URL    string
	Header http.Header
	// HeaderFunc, when set, is called before every dial and its values are
	// added to Header, so credentials can change between reconnects.
	HeaderFunc func() http.Header

	Backoff Backoff

	// DecodeAlertThreshold <= 0 uses DefaultDecodeAlertThreshold.
	DecodeAlertThreshold int

	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

// Transport keeps one logical subscription to a websocket endpoint alive.
//
// After any close or dial failure it reconnects after a Backoff delay, without
// limit, until Close is called or the Start context ends. Frames sent by the
// server while disconnected are lost.
type Transport struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	logger  log.Logger

	state          atomic.Int32
	attempts       atomic.Uint64
	decodeFailures atomic.Uint64
	// consecutive is only touched by the read goroutine.
	consecutive int

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	onChange func(State)
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger for connection and decode events.
func WithLogger(l log.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithDialer replaces the default dialer, whose handshake timeout comes from
// Config.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// New creates a transport. Nothing is dialed until Start.
func New(cfg Config, handler Handler, opts ...Option) *Transport {
	if cfg.DecodeAlertThreshold <= 0 {
		cfg.DecodeAlertThreshold = DefaultDecodeAlertThreshold
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	t := &Transport{
		cfg:     cfg,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: log.Component("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the connect loop in the background. Calling it again, or
// after Close, does nothing.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil || t.closed {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	t.done = done
	go func() {
		defer close(done)
		t.loop(ctx)
	}()
}

// Run is Start followed by waiting for the loop to end.
func (t *Transport) Run(ctx context.Context) {
	t.Start(ctx)
	if done := t.Done(); done != nil {
		<-done
	}
}

// Done is closed once the connect loop has exited. Nil before Start.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close tears down the current channel, stops reconnecting and waits for the
// loop to exit. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		conn.Close()
	}
	if done != nil {
		<-done
	}
	t.setState(StateDisconnected)
	return nil
}

// IsConnected reports whether the channel is currently open.
func (t *Transport) IsConnected() bool {
	return t.State() == StateOpen
}

func (t *Transport) State() State {
	return State(t.state.Load())
}

// Attempts is the number of connection attempts made so far.
func (t *Transport) Attempts() uint64 {
	return t.attempts.Load()
}

// DecodeFailures is the number of frames dropped as undecodable.
func (t *Transport) DecodeFailures() uint64 {
	return t.decodeFailures.Load()
}

// SetOnStateChange registers fn to be called after every state transition.
func (t *Transport) SetOnStateChange(fn func(State)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Transport) setState(s State) {
	if State(t.state.Swap(int32(s))) == s {
		return
	}
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (t *Transport) loop(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			t.setState(StateDisconnected)
			return
		}

		t.setState(StateConnecting)
		t.attempts.Add(1)
		conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, t.dialHeader())
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			t.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("Push channel connect failed", "url", t.cfg.URL, "status", status, "error", err, "attempt", attempt+1)
		} else {
			if !t.adopt(conn) {
				conn.Close()
				t.setState(StateDisconnected)
				return
			}
			attempt = 0
			t.setState(StateOpen)
			t.logger.Info("Push channel connected", "url", t.cfg.URL)

			stop := context.AfterFunc(ctx, func() { conn.Close() })
			readErr := t.readLoop(conn)
			stop()
			t.release(conn)
			t.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			t.logger.Info("Push channel disconnected, reconnecting", "error", readErr)
		}

		delay := t.cfg.Backoff.Delay(attempt)
		attempt++
		t.logger.Debug("Waiting before reconnect", "delay", delay.String(), "attempt", attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.setState(StateDisconnected)
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) dialHeader() http.Header {
	if t.cfg.HeaderFunc == nil {
		return t.cfg.Header
	}
	h := t.cfg.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	for k, vs := range t.cfg.HeaderFunc() {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// adopt makes conn current unless Close won the race.
func (t *Transport) adopt(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conn = conn
	return true
}

func (t *Transport) release(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(t.cfg.MaxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.dispatch(data)
	}
}

func (t *Transport) dispatch(data []byte) {
	if isKeepalive(data) {
		return
	}

	var msg Message
	err := json.Unmarshal(data, &msg)
	if err == nil && msg.Type == "" {
		err = errMissingType
	}
	if err != nil {
		t.decodeFailed(err, len(data))
		return
	}
	t.consecutive = 0

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Push handler panic recovered", "type", msg.Type, "panic", r)
		}
	}()
	if t.handler != nil {
		t.handler(msg)
	}
}

func (t *Transport) decodeFailed(err error, size int) {
	total := t.decodeFailures.Add(1)
	t.consecutive++
	t.logger.Debug("Dropping undecodable push frame", "error", err, "bytes", size)
	if t.consecutive%t.cfg.DecodeAlertThreshold == 0 {
		t.logger.Warn("Push frames keep failing to decode", "consecutive", t.consecutive, "total", total)
	}
}

// isKeepalive matches the bare text pings some servers interleave with JSON.
func isKeepalive(data []byte) bool {
	b := bytes.TrimSpace(data)
	return bytes.Equal(b, []byte("ping")) || bytes.Equal(b, []byte("pong"))
}
