// Package probe checks whether a device answers on the local network.
//
// It tries ICMP first, then falls back to a TCP connect sweep of common
// management ports. Results are advisory and never change the registry.
package probe

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 5
)

type Method string

const (
	MethodNone Method = "none"
	MethodICMP Method = "icmp"
	MethodTCP  Method = "tcp"
)

type Result struct {
	DeviceID  string
	Name      string
	IP        string
	Reachable bool
	Method    Method
	RTT       time.Duration
	MAC       string
	OpenPorts []int
	Err       error
}

// Services names the open ports that have a known label.
func (r Result) Services() []string {
	var out []string
	for _, p := range r.OpenPorts {
		if name, ok := ServiceNames[p]; ok {
			out = append(out, name)
		}
	}
	return out
}

type Prober struct {
	pinger  Pinger
	arp     MACResolver
	dial    dialFunc
	ports   []int
	timeout time.Duration
	logger  log.Logger
}

type Option func(*Prober)

// WithPinger, WithMACResolver and WithPorts replace the probe backends.
func WithPinger(p Pinger) Option           { return func(pr *Prober) { pr.pinger = p } }
func WithMACResolver(m MACResolver) Option { return func(pr *Prober) { pr.arp = m } }
func WithPorts(ports ...int) Option        { return func(pr *Prober) { pr.ports = ports } }
func WithLogger(l log.Logger) Option       { return func(pr *Prober) { pr.logger = l } }

func WithTimeout(d time.Duration) Option {
	return func(pr *Prober) {
		if d > 0 {
			pr.timeout = d
		}
	}
}

// New returns a Prober using ICMP and ARP from the host. Both degrade to
// no-ops without the needed privileges.
func New(opts ...Option) *Prober {
	p := &Prober{
		ports:   CommonPorts,
		timeout: DefaultTimeout,
		logger:  log.Component("probe"),
	}
	var d net.Dialer
	p.dial = d.DialContext
	for _, opt := range opts {
		opt(p)
	}
	if p.pinger == nil {
		p.pinger = NewICMPPinger()
	}
	if p.arp == nil {
		p.arp = NewARPResolver(p.timeout)
	}
	return p
}

// Probe checks one address. An error is returned only for an unusable
// address or a cancelled context; an unreachable host is a normal result.
func (p *Prober) Probe(ctx context.Context, ip string) (Result, error) {
	res := Result{IP: ip, Method: MethodNone}
	if net.ParseIP(ip) == nil {
		return res, fmt.Errorf("invalid IP address %q", ip)
	}

	alive, rtt, err := p.pinger.Ping(ctx, ip, p.timeout)
	if err != nil {
		p.logger.Debug("Ping failed", "ip", ip, "error", err)
	}
	if alive {
		res.Reachable = true
		res.Method = MethodICMP
		res.RTT = rtt
		if mac, err := p.arp.GetMAC(ctx, ip); err == nil {
			res.MAC = mac
		} else {
			p.logger.Debug("MAC lookup failed", "ip", ip, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	open, first := scanPorts(ctx, p.dial, ip, p.ports, p.timeout)
	res.OpenPorts = open
	if !res.Reachable && len(open) > 0 {
		res.Reachable = true
		res.Method = MethodTCP
		res.RTT = first
	}

	p.logger.Debug("Probed host", "ip", ip, "reachable", res.Reachable, "method", res.Method, "ports", len(open))
	return res, ctx.Err()
}

// ProbeAll probes every device with at most concurrency probes in flight.
// Results keep the order of devices.
func (p *Prober) ProbeAll(ctx context.Context, devices []model.Device, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]Result, len(devices))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	p.logger.Info("Probing devices", "count", len(devices), "max_concurrent", concurrency)

	for i, d := range devices {
		wg.Add(1)
		go func(i int, d model.Device) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{DeviceID: d.ID, Name: d.Name, IP: d.IPAddress, Method: MethodNone, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			res, err := p.Probe(ctx, d.IPAddress)
			res.DeviceID = d.ID
			res.Name = d.Name
			res.Err = err
			results[i] = res
		}(i, d)
	}

	wg.Wait()
	return results
}
