package hook

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/reactor"
)

// Close cancels every fiber waiting on fd's readiness (running their
// callbacks synchronously, so they observe the cancellation before this
// function returns), removes fd from [Table], and then issues the real
// close(2). Grounded on original_source's hooked `close`: cancelAll, then
// FdMgr::del, then the underlying close — in that order, so no fiber is
// left waiting on a descriptor number the kernel might already have
// reused for something else.
func Close(ctx context.Context, fd int) error {
	if !reactor.IsHookEnable(ctx) {
		return unix.Close(fd)
	}

	if _, ok := Table.Get(fd); ok {
		reactor.Current(ctx).CancelAll(fd)
		Table.Remove(fd)
	}
	return unix.Close(fd)
}
