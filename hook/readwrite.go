package hook

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

// Read suspends the calling fiber until fd has data available, then reads
// into p. All the read-shaped hooks below are direct doIO instantiations
// over the matching golang.org/x/sys/unix call, exactly as
// original_source/sylar/hook.cc's `read`/`readv`/`recv`/... are all one
// HOOK_FUN(do_io(...)) call apiece.
func Read(ctx context.Context, fd int, p []byte) (int, error) {
	return doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "read", func() (int, error) {
		return unix.Read(fd, p)
	})
}

// Readv is the scatter/gather form of Read.
func Readv(ctx context.Context, fd int, iovs [][]byte) (int, error) {
	return doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "readv", func() (int, error) {
		return unix.Readv(fd, iovs)
	})
}

// Recv is Read with socket-specific flags (MSG_PEEK, MSG_DONTWAIT, ...).
func Recv(ctx context.Context, fd int, p []byte, flags int) (int, error) {
	return doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "recv", func() (int, error) {
		n, _, err := unix.Recvfrom(fd, p, flags)
		return n, err
	})
}

type recvfromResult struct {
	n    int
	from unix.Sockaddr
}

// Recvfrom is Recv that also reports the sender's address.
func Recvfrom(ctx context.Context, fd int, p []byte, flags int) (n int, from unix.Sockaddr, err error) {
	res, err := doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "recvfrom", func() (recvfromResult, error) {
		n, from, err := unix.Recvfrom(fd, p, flags)
		return recvfromResult{n, from}, err
	})
	return res.n, res.from, err
}

type recvmsgResult struct {
	n, oobn, recvflags int
	from                unix.Sockaddr
}


// Recvmsg is Recv with ancillary (control) message support.
func Recvmsg(ctx context.Context, fd int, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error) {
	res, err := doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "recvmsg", func() (recvmsgResult, error) {
		n, oobn, recvflags, from, err := unix.Recvmsg(fd, p, oob, flags)
		return recvmsgResult{n, oobn, recvflags, from}, err
	})
	return res.n, res.oobn, res.recvflags, res.from, err
}

// Write suspends the calling fiber until fd can accept more data, then
// writes p.
func Write(ctx context.Context, fd int, p []byte) (int, error) {
	return doIO(ctx, fd, reactor.EventWrite, fdtable.TimeoutSend, "write", func() (int, error) {
		return unix.Write(fd, p)
	})
}

// Writev is the scatter/gather form of Write.
func Writev(ctx context.Context, fd int, iovs [][]byte) (int, error) {
	return doIO(ctx, fd, reactor.EventWrite, fdtable.TimeoutSend, "writev", func() (int, error) {
		return unix.Writev(fd, iovs)
	})
}

// Send is Write with socket-specific flags.
func Send(ctx context.Context, fd int, p []byte, flags int) (int, error) {
	return doIO(ctx, fd, reactor.EventWrite, fdtable.TimeoutSend, "send", func() (int, error) {
		return sendto(fd, p, flags, nil)
	})
}

// Sendto is Send to an explicit destination address (for unconnected
// sockets).
func Sendto(ctx context.Context, fd int, p []byte, flags int, to unix.Sockaddr) (int, error) {
	return doIO(ctx, fd, reactor.EventWrite, fdtable.TimeoutSend, "sendto", func() (int, error) {
		return sendto(fd, p, flags, to)
	})
}

// Sendmsg is Send with ancillary (control) message support.
func Sendmsg(ctx context.Context, fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
	return doIO(ctx, fd, reactor.EventWrite, fdtable.TimeoutSend, "sendmsg", func() (int, error) {
		return unix.Sendmsg(fd, p, oob, to, flags)
	})
}

// sendto wraps unix.Sendto, whose signature returns only an error, into
// the (int, error) shape doIO expects; on success it reports len(p) sent
// since Sendto is all-or-nothing for a single datagram/stream write.
func sendto(fd int, p []byte, flags int, to unix.Sockaddr) (int, error) {
	if err := unix.Sendto(fd, p, flags, to); err != nil {
		return 0, err
	}
	return len(p), nil
}
