// Package hook provides POSIX-shaped functions — Sleep, Socket, Connect,
// Accept, the Read/Write family, Close, Fcntl, Ioctl, Getsockopt/
// Setsockopt — that a fiber calls instead of golang.org/x/sys/unix
// directly. Each one cooperatively suspends the calling fiber to the
// reactor running in ctx instead of blocking the OS thread, exactly the
// transformation original_source/sylar/hook.cc applies by overriding libc
// symbols via dlsym(RTLD_NEXT, ...) — Go has no equivalent linkage trick,
// so callers opt in by calling this package's functions explicitly.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/config"
	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

// Table is the process-wide descriptor registry every hook function
// consults. Exported so a program can pre-register descriptors it didn't
// obtain via hook.Socket/hook.Accept (e.g. an *os.File handed in from
// elsewhere) — see fdtable.Table.GetOrCreate.
var Table = fdtable.NewTable(config.TCPConnectTimeout)

// doIO is the generic I/O transform shared by every read/write-shaped
// hook (Accept, Read, Readv, Recv, Recvfrom, Recvmsg, Write, Writev,
// Send, Sendto, Sendmsg), grounded on original_source/sylar/hook.cc's
// `do_io` template. Its seven-step contract:
//
//  1. pass-through if hooking is disabled on the current reactor.
//  2. look up (or register) the fd's table entry.
//  3. fail EBADF if the entry is already closed.
//  4. pass through if the fd isn't a socket, or the user asked for
//     nonblocking mode themselves — doIO must never suspend a fiber that
//     didn't ask to block.
//  5. look up the applicable timeout (recv or send).
//  6. call op; on EINTR, retry immediately; on EAGAIN, suspend until the
//     fd becomes ready or the timeout elapses, then retry.
//  7. return op's result once it stops returning EAGAIN/EINTR.
func doIO[T any](ctx context.Context, fd int, kind reactor.EventKind, sel fdtable.TimeoutSelector, name string, op func() (T, error)) (T, error) {
	var zero T

	if !reactor.IsHookEnable(ctx) {
		return op()
	}

	entry, err := Table.GetOrCreate(fd)
	if err != nil {
		return zero, err
	}
	if entry.Closed() {
		return zero, unix.EBADF
	}
	if !entry.IsSocket() || entry.UserNonblock() {
		return op()
	}

	timeout := entry.Timeout(sel)

	for {
		result, err := op()
		for errors.Is(err, unix.EINTR) {
			result, err = op()
		}

		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
			return result, err
		}

		if waitErr := waitForEvent(ctx, fd, kind, timeout); waitErr != nil {
			return zero, waitErr
		}
		// loop around and retry op() now that the fd is ready (or enough
		// time has passed that the kernel says so again)
	}
}

// waitForEvent suspends the calling fiber until fd becomes ready for kind
// or timeout elapses, whichever comes first. This is step 6's suspend/
// resume half: a WaitToken is created so a firing timer and a firing
// event can race safely, with the first to observe the token winning
// (spec.md §5's "first writer of cancel_code wins").
func waitForEvent(ctx context.Context, fd int, kind reactor.EventKind, timeout time.Duration) error {
	r := reactor.Current(ctx)
	tok := r.NewWaitToken()
	fut := reactor.NewFuture[any]()

	if err := r.AddEvent(fd, kind, func() {
		if tok.TrySetCancel(nil) {
			fut.SetResult(nil, nil)
		}
	}); err != nil {
		tok.Release()
		slog.WarnContext(ctx, "hook: event registration failed",
			slog.Int("fd", fd), slog.String("event", kind.String()), slog.Any("error", err))
		return fmt.Errorf("hook: register %s event for fd %d: %w", kind, fd, err)
	}

	var timer *reactor.Timer
	if timeout > 0 {
		timer = r.AddConditionalTimer(timeout, tok.Witness(), func(tok *reactor.WaitToken) {
			if tok.TrySetCancel(unix.ETIMEDOUT) {
				r.CancelEvent(fd, kind)
				fut.SetResult(nil, unix.ETIMEDOUT)
			}
		})
	}

	_, err := fut.Await(ctx)
	if timer != nil {
		timer.Cancel()
	}
	if cancelErr := tok.Cancelled(); cancelErr != nil {
		err = cancelErr
	}
	tok.Release()
	return err
}
