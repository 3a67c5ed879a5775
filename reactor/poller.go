package reactor

import (
	"errors"
	"time"
)

// ErrUnsupportedPlatform is returned by fd-readiness registration on
// platforms without a native multiplexer backing (see poller_chan.go).
var ErrUnsupportedPlatform = errors.New("reactor: fd readiness polling not supported on this platform")

// readyFd reports that fd became ready for the given event kinds during
// the last [eventPoller.wait] call.
type readyFd struct {
	fd    int
	kinds EventKind
}

// eventPoller is the OS-specific I/O multiplexer a [Reactor] drives. It
// only reports readiness; the Reactor owns the mapping from fd to waiting
// fibers (see loop.go's waiters field) so that callback semantics —
// level-triggered retry, synchronous cancellation delivery — live in one
// place regardless of platform.
type eventPoller interface {
	wait(timeout time.Duration) ([]readyFd, error)
	wakeup() error
	register(fd int) error
	unregister(fd int) error
	close() error
}
