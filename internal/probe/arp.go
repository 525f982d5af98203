package probe

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/j-keck/arping"
)

// MACResolver looks up the hardware address of a neighbour.
type MACResolver interface {
	GetMAC(ctx context.Context, ip string) (string, error)
}

// ARPResolver resolves IPv4 neighbours with a raw ARP request.
type ARPResolver struct{}

// arping keeps its timeout in a package variable.
var arpTimeoutOnce sync.Once

func NewARPResolver(timeout time.Duration) *ARPResolver {
	arpTimeoutOnce.Do(func() { arping.SetTimeout(timeout) })
	return &ARPResolver{}
}

func (ARPResolver) GetMAC(ctx context.Context, ip string) (string, error) {
	addr := net.ParseIP(ip).To4()
	if addr == nil {
		return "", fmt.Errorf("arp needs an IPv4 address, got %q", ip)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mac, _, err := arping.Ping(addr)
	if err != nil {
		return "", fmt.Errorf("arping failed: %w", err)
	}
	return mac.String(), nil
}
