package hook

import (
	"context"
	"net"
	"strconv"

	"github.com/coro-oss/fiberhook/config"
)

// lookupHostPort resolves address (host:port) into a list of IPs and a
// port, using the stdlib resolver. DNS resolution is not part of this
// module's hook surface — spec.md never mentions intercepting name
// resolution — so this runs as an ordinary blocking call on the calling
// fiber's reactor goroutine, which stalls that reactor until it returns.
func lookupHostPort(ctx context.Context, network, address string) ([]net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, ipNetworkFor(network), host)
	if err != nil {
		return nil, 0, err
	}
	return ips, port, nil
}

func ipNetworkFor(network string) string {
	switch network {
	case "tcp4", "udp4":
		return "ip4"
	case "tcp6", "udp6":
		return "ip6"
	default:
		return "ip"
	}
}

func tcpConnectRetries() int {
	return config.TCPConnectRetries.Value()
}
