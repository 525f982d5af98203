package probe

import (
	"context"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"
)

// CommonPorts are swept when a host does not answer ICMP.
var CommonPorts = []int{
	22, 23, 53, 80, 161, 443, 830, 8080, 8443,
}

// ServiceNames labels well-known management ports.
var ServiceNames = map[int]string{
	22:   "SSH",
	23:   "Telnet",
	53:   "DNS",
	80:   "HTTP",
	161:  "SNMP",
	443:  "HTTPS",
	830:  "NETCONF",
	8080: "HTTP-Alt",
	8443: "HTTPS-Alt",
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// scanPorts connects to every port at once and returns the open ones sorted,
// plus the time until the first successful connect.
func scanPorts(ctx context.Context, dial dialFunc, ip string, ports []int, timeout time.Duration) ([]int, time.Duration) {
	var (
		open  []int
		first time.Duration
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	start := time.Now()

	for _, port := range ports {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()

			dctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			conn, err := dial(dctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(p)))
			if err != nil {
				return
			}
			conn.Close()

			elapsed := time.Since(start)
			mu.Lock()
			open = append(open, p)
			if first == 0 || elapsed < first {
				first = elapsed
			}
			mu.Unlock()
		}(port)
	}

	wg.Wait()
	slices.Sort(open)
	return open, first
}
