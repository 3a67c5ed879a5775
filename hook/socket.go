package hook

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/reactor"
)

// Socket creates a new socket, matching original_source's hooked
// `socket`: pass straight through to the real socket(2) when hooking is
// off, otherwise register the new descriptor in [Table] on success (which
// is what forces it kernel-nonblocking).
func Socket(ctx context.Context, domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	if !reactor.IsHookEnable(ctx) {
		return fd, nil
	}
	if _, err := Table.Register(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
