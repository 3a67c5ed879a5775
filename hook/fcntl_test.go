package hook

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestFcntlGetflReflectsUserNonblock(t *testing.T) {
	a, b := socketpair(t)
	_ = b

	entry, err := Table.GetOrCreate(a)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	// entry starts sys-nonblock (forced) but user-nonblock false
	if !entry.SysNonblock() {
		t.Fatalf("expected fd registered as a socket to be sys-nonblocking")
	}

	flags, err := Fcntl(a, unix.F_GETFL)
	if err != nil {
		t.Fatalf("Fcntl F_GETFL: %v", err)
	}
	if flags&unix.O_NONBLOCK != 0 {
		t.Errorf("expected F_GETFL to hide the forced sys-nonblock flag, got flags=%#x", flags)
	}

	entry.SetUserNonblock(true)
	flags, err = Fcntl(a, unix.F_GETFL)
	if err != nil {
		t.Fatalf("Fcntl F_GETFL: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Errorf("expected F_GETFL to report O_NONBLOCK once user-nonblock is set")
	}
}

func TestFcntlSetflTracksUserNonblock(t *testing.T) {
	a, _ := socketpair(t)
	entry, err := Table.GetOrCreate(a)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if _, err := Fcntl(a, unix.F_SETFL, unix.O_NONBLOCK); err != nil {
		t.Fatalf("Fcntl F_SETFL: %v", err)
	}
	if !entry.UserNonblock() {
		t.Errorf("expected F_SETFL with O_NONBLOCK to set UserNonblock")
	}

	if _, err := Fcntl(a, unix.F_SETFL, 0); err != nil {
		t.Fatalf("Fcntl F_SETFL: %v", err)
	}
	if entry.UserNonblock() {
		t.Errorf("expected F_SETFL without O_NONBLOCK to clear UserNonblock")
	}
	if !entry.SysNonblock() {
		t.Errorf("expected the entry to remain sys-nonblocking regardless of the user's request")
	}
}

func TestFcntlPassthroughForNonSocket(t *testing.T) {
	// fd 1 (stdout) is never a socket; F_GETFD should pass straight
	// through without consulting Table at all.
	fd, err := Fcntl(1, unix.F_GETFD)
	if err != nil {
		t.Fatalf("Fcntl F_GETFD on stdout: %v", err)
	}
	_ = fd
}
