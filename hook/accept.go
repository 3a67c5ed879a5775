package hook

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

type acceptResult struct {
	fd int
	sa unix.Sockaddr
}

// Accept accepts a connection on the listening socket fd, suspending the
// calling fiber until one arrives (or fd's recv timeout elapses), and
// registers the new descriptor in [Table]. Grounded on original_source's
// hooked `accept`: a doIO-shaped read-wait plus FdMgr registration of the
// accepted fd.
func Accept(ctx context.Context, fd int) (newFd int, sa unix.Sockaddr, err error) {
	res, err := doIO(ctx, fd, reactor.EventRead, fdtable.TimeoutRecv, "accept",
		func() (acceptResult, error) {
			newFd, sa, err := unix.Accept(fd)
			return acceptResult{newFd, sa}, err
		})
	if err != nil {
		return -1, nil, err
	}
	if _, regErr := Table.Register(res.fd, true); regErr != nil {
		unix.Close(res.fd)
		return -1, nil, regErr
	}
	return res.fd, res.sa, nil
}
