package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = Backoff{Initial: 20 * time.Millisecond, Max: 40 * time.Millisecond}

type wsServer struct {
	srv      *httptest.Server
	accepted atomic.Int32
	reject   atomic.Int32
}

// newWSServer upgrades every request and hands the connection to onConn;
// the connection is closed when onConn returns. The first reject.Load()
// requests are refused with 503 instead.
func newWSServer(t *testing.T, onConn func(n int32, c *websocket.Conn)) *wsServer {
	t.Helper()
	ws := &wsServer{}
	upgrader := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.reject.Load() > 0 {
			ws.reject.Add(-1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := ws.accepted.Add(1)
		onConn(n, c)
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

// drain blocks until the client goes away.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func startTransport(t *testing.T, cfg Config, h Handler) *Transport {
	t.Helper()
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = fastBackoff
	}
	tr := New(cfg, h, WithLogger(log.Nop{}))
	tr.Start(context.Background())
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestDeliversDecodedMessages(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_update","data":{"id":"a"}}`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_update","data":[{"id":"b"},{"id":"c"}]}`))
		drain(c)
	})

	var got collector
	tr := startTransport(t, Config{URL: ws.url()}, got.handle)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	msgs := got.snapshot()
	assert.Equal(t, "device_update", msgs[0].Type)
	assert.JSONEq(t, `{"id":"a"}`, string(msgs[0].Data))
	assert.JSONEq(t, `[{"id":"b"},{"id":"c"}]`, string(msgs[1].Data))
	assert.True(t, tr.IsConnected())
	assert.Zero(t, tr.DecodeFailures())
}

func TestBadFramesAreDroppedAndCounted(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("ping"))
		c.WriteMessage(websocket.TextMessage, []byte("{not json"))
		c.WriteMessage(websocket.TextMessage, []byte(`{"data":{"id":"a"}}`))
		c.WriteMessage(websocket.TextMessage, []byte(`"just a string"`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_update","data":{"id":"ok"}}`))
		drain(c)
	})

	var got collector
	tr := startTransport(t, Config{URL: ws.url(), DecodeAlertThreshold: 2}, got.handle)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"id":"ok"}`, string(got.snapshot()[0].Data))
	assert.EqualValues(t, 3, tr.DecodeFailures())

	// the channel survived the bad frames
	assert.True(t, tr.IsConnected())
	assert.EqualValues(t, 1, ws.accepted.Load())
	assert.EqualValues(t, 1, tr.Attempts())
}

func TestHandlerPanicDoesNotKillChannel(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"boom"}`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"fine"}`))
		drain(c)
	})

	var got collector
	tr := startTransport(t, Config{URL: ws.url()}, func(m Message) {
		if m.Type == "boom" {
			panic("handler bug")
		}
		got.handle(m)
	})

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, tr.IsConnected())
}

func TestReconnectsAfterUnexpectedClose(t *testing.T) {
	release := make(chan struct{})
	ws := newWSServer(t, func(n int32, c *websocket.Conn) {
		if n == 1 {
			// first connection: wait for the test, then drop it
			<-release
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_update","data":{"id":"after"}}`))
		drain(c)
	})

	var got collector
	var states []State
	var statesMu sync.Mutex
	tr := New(Config{URL: ws.url(), Backoff: fastBackoff}, got.handle, WithLogger(log.Nop{}))
	tr.SetOnStateChange(func(s State) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})
	tr.Start(context.Background())
	t.Cleanup(func() { tr.Close() })

	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, tr.Attempts())

	close(release)

	require.Eventually(t, func() bool { return !tr.IsConnected() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return tr.Attempts() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, ws.accepted.Load())

	statesMu.Lock()
	defer statesMu.Unlock()
	require.GreaterOrEqual(t, len(states), 5)
	assert.Equal(t, []State{StateConnecting, StateOpen, StateDisconnected, StateConnecting, StateOpen}, states[:5])
}

func TestRetriesDialFailuresWithoutLimit(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) { drain(c) })
	ws.reject.Store(5)

	tr := startTransport(t, Config{URL: ws.url()}, nil)

	require.Eventually(t, tr.IsConnected, 3*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 6, tr.Attempts())
	assert.EqualValues(t, 1, ws.accepted.Load())
}

func TestCloseStopsReconnecting(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) { drain(c) })

	tr := startTransport(t, Config{URL: ws.url()}, nil)
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	assert.Equal(t, StateDisconnected, tr.State())

	attempts := tr.Attempts()
	time.Sleep(5 * fastBackoff.Max)
	assert.Equal(t, attempts, tr.Attempts())

	select {
	case <-tr.Done():
	default:
		t.Fatal("loop still running after Close")
	}

	// idempotent, and Start after Close is a no-op
	require.NoError(t, tr.Close())
	tr.Start(context.Background())
	assert.Equal(t, attempts, tr.Attempts())
}

func TestContextCancelStopsLoop(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) { drain(c) })
	ws.reject.Store(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	tr := New(Config{URL: ws.url(), Backoff: fastBackoff}, nil, WithLogger(log.Nop{}))
	tr.Start(ctx)

	require.Eventually(t, func() bool { return tr.Attempts() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after cancel")
	}
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestRunBlocksUntilCancelled(t *testing.T) {
	ws := newWSServer(t, func(_ int32, c *websocket.Conn) { drain(c) })

	ctx, cancel := context.WithCancel(context.Background())
	tr := New(Config{URL: ws.url(), Backoff: fastBackoff}, nil, WithLogger(log.Nop{}))

	returned := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(returned)
	}()

	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
	select {
	case <-returned:
		t.Fatal("Run returned while connected")
	default:
	}

	cancel()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestHeaderFuncRunsOnEveryDial(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization")+"|"+r.Header.Get("X-Static"))
		mu.Unlock()
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	t.Cleanup(srv.Close)

	var n atomic.Int32
	tr := New(Config{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Header:  http.Header{"X-Static": {"yes"}},
		Backoff: fastBackoff,
		HeaderFunc: func() http.Header {
			return http.Header{"Authorization": {"Bearer t" + strconv.Itoa(int(n.Add(1)))}}
		},
	}, nil, WithLogger(log.Nop{}))
	tr.Start(context.Background())
	t.Cleanup(func() { tr.Close() })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer t1|yes", seen[0])
	assert.Equal(t, "Bearer t2|yes", seen[1])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
}
