package hook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coro-oss/fiberhook/reactor"
)

func newLoopbackListener(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })

	if err := unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}
	return fd, sa.(*unix.SockaddrInet4).Port
}

func TestConnectAndAccept(t *testing.T) {
	listenFd, port := newLoopbackListener(t)

	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = r.Run(ctx, func(ctx context.Context) error {
		reactor.SetHookEnable(ctx, true)
		if _, err := Table.Register(listenFd, true); err != nil {
			return err
		}

		acceptFiber := reactor.Spawn(ctx, func(ctx context.Context) (int, error) {
			newFd, _, err := Accept(ctx, listenFd)
			return newFd, err
		})

		clientFd, err := Socket(ctx, unix.AF_INET, unix.SOCK_STREAM, 0)
		if err != nil {
			return err
		}
		defer Close(ctx, clientFd)

		dialErr := Connect(ctx, clientFd, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}, time.Second)
		if dialErr != nil {
			return dialErr
		}

		serverFd, err := acceptFiber.Await(ctx)
		if err != nil {
			return err
		}
		defer Close(ctx, serverFd)

		if _, err := Write(ctx, clientFd, []byte("ping")); err != nil {
			return err
		}
		buf := make([]byte, 4)
		n, err := Read(ctx, serverFd, buf)
		if err != nil {
			return err
		}
		if string(buf[:n]) != "ping" {
			t.Errorf("expected to read 'ping', got %q", string(buf[:n]))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDialTimeoutConnectsToResolvedAddress(t *testing.T) {
	listenFd, port := newLoopbackListener(t)

	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = r.Run(ctx, func(ctx context.Context) error {
		reactor.SetHookEnable(ctx, true)
		if _, err := Table.Register(listenFd, true); err != nil {
			return err
		}

		acceptFiber := reactor.Spawn(ctx, func(ctx context.Context) (int, error) {
			newFd, _, err := Accept(ctx, listenFd)
			return newFd, err
		})

		addr := fmt.Sprintf("127.0.0.1:%d", port)
		clientFd, err := DialTimeout(ctx, "tcp4", addr, time.Second)
		if err != nil {
			return err
		}
		defer Close(ctx, clientFd)

		serverFd, err := acceptFiber.Await(ctx)
		if err != nil {
			return err
		}
		defer Close(ctx, serverFd)

		if _, err := Write(ctx, clientFd, []byte("pong")); err != nil {
			return err
		}
		buf := make([]byte, 4)
		n, err := Read(ctx, serverFd, buf)
		if err != nil {
			return err
		}
		if string(buf[:n]) != "pong" {
			t.Errorf("expected to read 'pong', got %q", string(buf[:n]))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDialTimeoutReturnsErrorWhenNothingListens(t *testing.T) {
	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = r.Run(ctx, func(ctx context.Context) error {
		reactor.SetHookEnable(ctx, true)
		_, dialErr := DialTimeout(ctx, "tcp4", "127.0.0.1:1", 200*time.Millisecond)
		if dialErr == nil {
			t.Errorf("expected an error dialing a port nothing listens on")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
