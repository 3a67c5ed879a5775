package hook

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

// Connect connects fd to addr, suspending the calling fiber until the
// connection resolves instead of blocking, with an overall deadline of
// timeout (or fd's registered ConnectTimeout if timeout is zero).
//
// This is a tailored protocol, not a doIO instantiation — connect(2)'s
// asynchronous-completion contract (EINPROGRESS, then a single write-ready
// event, then SO_ERROR to learn the outcome) doesn't fit the "retry op
// until it stops returning EAGAIN" shape every other hooked call shares.
// Grounded on original_source/sylar/hook.cc's connect_with_timeout.
func Connect(ctx context.Context, fd int, addr unix.Sockaddr, timeout time.Duration) error {
	if !reactor.IsHookEnable(ctx) {
		return unix.Connect(fd, addr)
	}

	entry, err := Table.GetOrCreate(fd)
	if err != nil {
		return err
	}
	if entry.Closed() {
		return unix.EBADF
	}
	if !entry.IsSocket() || entry.UserNonblock() {
		return unix.Connect(fd, addr)
	}

	if timeout <= 0 {
		timeout = entry.ConnectTimeout()
	}

	err = unix.Connect(fd, addr)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return err
	}

	if waitErr := waitForEvent(ctx, fd, reactor.EventWrite, timeout); waitErr != nil {
		return waitErr
	}

	errno, getErr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if getErr != nil {
		return getErr
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// DialTimeout races Connect against every address resolved for
// network/address, up to config.TCPConnectRetries additional attempts
// beyond the first, returning a connected socket fd for the first
// address to succeed and cancelling the rest. This is the one feature
// from this package not named in spec.md: it is grounded on the
// teacher's EpollPoller.Dial/dialSingle, which raced multiple resolved
// addresses the same way (see SPEC_FULL.md §8 item 7).
func DialTimeout(ctx context.Context, network, address string, timeout time.Duration) (int, error) {
	addrs, err := resolveSockaddrs(ctx, network, address)
	if err != nil {
		return -1, err
	}

	domain, typ, proto := socketParamsForNetwork(network)

	attempts := make([]reactor.Coroutine1[int], len(addrs))
	for i, addr := range addrs {
		addr := addr
		attempts[i] = func(ctx context.Context) (int, error) {
			fd, err := Socket(ctx, domain, typ, proto)
			if err != nil {
				return -1, err
			}
			if err := Connect(ctx, fd, addr, timeout); err != nil {
				unix.Close(fd)
				return -1, err
			}
			return fd, nil
		}
	}

	return reactor.GetFirstResult(ctx, attempts...)
}

// resolveSockaddrs resolves address on network into concrete sockaddrs,
// capped at 1+config.TCPConnectRetries entries.
func resolveSockaddrs(ctx context.Context, network, address string) ([]unix.Sockaddr, error) {
	ips, port, err := lookupHostPort(ctx, network, address)
	if err != nil {
		return nil, err
	}

	maxAddrs := 1 + tcpConnectRetries()
	if len(ips) > maxAddrs {
		ips = ips[:maxAddrs]
	}

	addrs := make([]unix.Sockaddr, 0, len(ips))
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			var sa unix.SockaddrInet4
			sa.Port = port
			copy(sa.Addr[:], v4)
			addrs = append(addrs, &sa)
		} else {
			var sa unix.SockaddrInet6
			sa.Port = port
			copy(sa.Addr[:], ip.To16())
			addrs = append(addrs, &sa)
		}
	}
	return addrs, nil
}

func socketParamsForNetwork(network string) (domain, typ, proto int) {
	switch network {
	case "tcp6", "udp6":
		domain = unix.AF_INET6
	default:
		domain = unix.AF_INET
	}
	switch network {
	case "udp", "udp4", "udp6":
		typ = unix.SOCK_DGRAM
	default:
		typ = unix.SOCK_STREAM
	}
	return domain, typ, 0
}
