package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	alive    bool
	rtt      time.Duration
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (bool, time.Duration, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.alive, s.rtt, s.err
}

type stubMAC struct {
	mac string
	err error
}

func (s stubMAC) GetMAC(ctx context.Context, ip string) (string, error) {
	return s.mac, s.err
}

func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a port that had a listener and no longer does.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func newProber(pinger Pinger, mac MACResolver, ports ...int) *Prober {
	return New(
		WithPinger(pinger),
		WithMACResolver(mac),
		WithPorts(ports...),
		WithTimeout(500*time.Millisecond),
		WithLogger(log.Nop{}),
	)
}

func TestProbeFallsBackToTCP(t *testing.T) {
	open := listen(t)
	closed := closedPort(t)
	p := newProber(&stubPinger{}, stubMAC{mac: "should-not-be-used"}, closed, open)

	res, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, MethodTCP, res.Method)
	assert.Equal(t, []int{open}, res.OpenPorts)
	assert.Empty(t, res.MAC)
	assert.Positive(t, res.RTT)
}

func TestProbeICMPAddsMAC(t *testing.T) {
	p := newProber(&stubPinger{alive: true, rtt: 3 * time.Millisecond}, stubMAC{mac: "aa:bb:cc:dd:ee:ff"}, closedPort(t))

	res, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, MethodICMP, res.Method)
	assert.Equal(t, 3*time.Millisecond, res.RTT)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", res.MAC)
	assert.Empty(t, res.OpenPorts)
}

func TestProbeICMPKeepsResultWhenMACFails(t *testing.T) {
	p := newProber(&stubPinger{alive: true}, stubMAC{err: errors.New("no route")}, closedPort(t))

	res, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Empty(t, res.MAC)
}

func TestProbeUnreachable(t *testing.T) {
	p := newProber(&stubPinger{err: errors.New("permission denied")}, stubMAC{}, closedPort(t))

	res, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, MethodNone, res.Method)
}

func TestProbeRejectsBadAddress(t *testing.T) {
	p := newProber(&stubPinger{}, stubMAC{})
	_, err := p.Probe(context.Background(), "not-an-ip")
	assert.ErrorContains(t, err, "invalid IP address")
}

func TestProbeAllKeepsOrderAndBound(t *testing.T) {
	open := listen(t)
	pinger := &stubPinger{delay: 20 * time.Millisecond}
	p := newProber(pinger, stubMAC{}, open)

	var devices []model.Device
	for i := 0; i < 8; i++ {
		devices = append(devices, model.Device{ID: "d" + strconv.Itoa(i), Name: "dev", IPAddress: "127.0.0.1"})
	}
	devices = append(devices, model.Device{ID: "bad", IPAddress: "nope"})

	results := p.ProbeAll(context.Background(), devices, 3)
	require.Len(t, results, len(devices))
	for i, d := range devices[:8] {
		assert.Equal(t, d.ID, results[i].DeviceID)
		assert.True(t, results[i].Reachable, d.ID)
		assert.NoError(t, results[i].Err)
	}
	assert.Equal(t, "bad", results[8].DeviceID)
	assert.Error(t, results[8].Err)
	assert.LessOrEqual(t, pinger.maxSeen.Load(), int32(3))
}

func TestProbeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProber(&stubPinger{}, stubMAC{}, closedPort(t))
	results := p.ProbeAll(ctx, []model.Device{{ID: "a", IPAddress: "127.0.0.1"}}, 1)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.False(t, results[0].Reachable)
}

func TestServices(t *testing.T) {
	r := Result{OpenPorts: []int{22, 443, 9999}}
	assert.Equal(t, []string{"SSH", "HTTPS"}, r.Services())
}
