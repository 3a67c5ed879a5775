package hook

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/fdtable"
	"github.com/coro-oss/fiberhook/reactor"
)

func TestSetsockoptRecordsRecvTimeout(t *testing.T) {
	a, _ := socketpair(t)
	entry, err := Table.GetOrCreate(a)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	err = r.Run(context.Background(), func(ctx context.Context) error {
		reactor.SetHookEnable(ctx, true)

		tv := unix.Timeval{Sec: 0, Usec: 250_000}
		optval := (*[unsafe.Sizeof(tv)]byte)(unsafe.Pointer(&tv))[:]
		return Setsockopt(ctx, a, unix.SOL_SOCKET, unix.SO_RCVTIMEO, optval)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := entry.Timeout(fdtable.TimeoutRecv); got != 250*time.Millisecond {
		t.Errorf("expected recv timeout of 250ms, got %s", got)
	}
}

func TestGetsockoptRoundTrip(t *testing.T) {
	a, _ := socketpair(t)

	var errVal int32
	optlen := uint32(unsafe.Sizeof(errVal))
	if err := Getsockopt(a, unix.SOL_SOCKET, unix.SO_ERROR, unsafe.Pointer(&errVal), &optlen); err != nil {
		t.Fatalf("Getsockopt SO_ERROR: %v", err)
	}
	if errVal != 0 {
		t.Errorf("expected SO_ERROR 0 on a healthy socket, got %d", errVal)
	}
}
