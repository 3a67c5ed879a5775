package hook

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/reactor"
)

// Sleep suspends the calling fiber for d, or runs a real sleep if hooking
// is disabled on the current reactor. Mirrors original_source's hooked
// `sleep`: arm a timer, yield, return 0 once it fires.
func Sleep(ctx context.Context, d time.Duration) error {
	if !reactor.IsHookEnable(ctx) {
		time.Sleep(d)
		return nil
	}
	return reactor.Sleep(ctx, d)
}

// Usleep is Sleep expressed in microseconds, matching the hooked
// `usleep(useconds_t)` signature.
func Usleep(ctx context.Context, usec uint) error {
	return Sleep(ctx, time.Duration(usec)*time.Microsecond)
}

// Nanosleep is Sleep expressed via a [unix.Timespec], matching the hooked
// `nanosleep(req, rem)` signature. rem is always zeroed: original_source's
// hook never reports actual remaining time on early wakeup either (a
// decided Open Question, see SPEC_FULL.md §4.3), since suspension here is never
// interrupted by a POSIX signal the way libc's nanosleep could be.
func Nanosleep(ctx context.Context, req *unix.Timespec, rem *unix.Timespec) error {
	if rem != nil {
		*rem = unix.Timespec{}
	}
	d := time.Duration(req.Sec)*time.Second + time.Duration(req.Nsec)*time.Nanosecond
	return Sleep(ctx, d)
}
