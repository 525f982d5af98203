package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-ping/ping"
)

// Pinger answers whether a host replies to an echo request.
type Pinger interface {
	Ping(ctx context.Context, ip string, timeout time.Duration) (bool, time.Duration, error)
}

// ICMPPinger sends a single ICMP echo. It needs raw socket access; without it
// every ping reports "not alive" so the caller falls back to TCP.
type ICMPPinger struct {
	privileged bool
}

func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{privileged: os.Geteuid() == 0 || canUseRawSocket()}
}

func (p *ICMPPinger) Privileged() bool {
	return p.privileged
}

func (p *ICMPPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (bool, time.Duration, error) {
	if !p.privileged {
		return false, 0, nil
	}

	pinger, err := ping.NewPinger(ip)
	if err != nil {
		return false, 0, fmt.Errorf("creating pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(true)

	// Run blocks until Count replies or Timeout; Stop unblocks it early.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()
	err = pinger.Run()
	close(done)
	if err != nil {
		return false, 0, fmt.Errorf("pinging %s: %w", ip, err)
	}

	stats := pinger.Statistics()
	return stats.PacketsRecv > 0, stats.AvgRtt, nil
}

func canUseRawSocket() bool {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
