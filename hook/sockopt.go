package hook

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

// Getsockopt is a pure passthrough to the real getsockopt(2) — exactly as
// original_source's hooked `getsockopt`, which does nothing but forward
// the call. optval/optlen follow the raw POSIX buffer-and-length-pointer
// shape since the option being read determines the buffer's layout.
func Getsockopt(fd, level, optname int, optval unsafe.Pointer, optlen *uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(optname),
		uintptr(optval), uintptr(unsafe.Pointer(optlen)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Setsockopt forwards to the real setsockopt(2), additionally recording
// SO_RCVTIMEO/SO_SNDTIMEO on the fd's table entry so doIO's suspend loop
// can honor it — original_source's hooked `setsockopt` does the same
// extra bookkeeping for exactly those two options, parsing the raw
// `struct timeval` it was handed into milliseconds.
func Setsockopt(ctx context.Context, fd, level, optname int, optval []byte) error {
	if reactor.IsHookEnable(ctx) && level == unix.SOL_SOCKET &&
		(optname == unix.SO_RCVTIMEO || optname == unix.SO_SNDTIMEO) {
		if entry, ok := Table.Get(fd); ok {
			if d, ok := parseTimeval(optval); ok {
				sel := fdtable.TimeoutRecv
				if optname == unix.SO_SNDTIMEO {
					sel = fdtable.TimeoutSend
				}
				entry.SetTimeout(sel, d)
			}
		}
	}

	var optPtr unsafe.Pointer
	if len(optval) > 0 {
		optPtr = unsafe.Pointer(&optval[0])
	}
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(optname),
		uintptr(optPtr), uintptr(len(optval)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// parseTimeval reads a raw struct timeval (two platform-native longs:
// tv_sec, tv_usec) the way original_source's hook casts optval directly
// to `const timeval*`.
func parseTimeval(optval []byte) (time.Duration, bool) {
	var tv unix.Timeval
	if len(optval) < int(unsafe.Sizeof(tv)) {
		return 0, false
	}
	tv = *(*unix.Timeval)(unsafe.Pointer(&optval[0]))
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond, true
}
