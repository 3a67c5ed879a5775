package hook

import "golang.org/x/sys/unix"

// Ioctl passes request through to the real ioctl(2). Only FIONBIO is
// inspected — matching original_source's hooked `ioctl`, which tracks the
// user's nonblocking request on the fd's table entry the same way
// F_SETFL does, but otherwise forwards every other request untouched.
func Ioctl(fd int, request uint, arg *int) error {
	if request == unix.FIONBIO {
		entry, ok := Table.Get(fd)
		if ok && !entry.Closed() && entry.IsSocket() {
			entry.SetUserNonblock(*arg != 0)
		}
	}
	return unix.IoctlSetInt(fd, request, *arg)
}
