// Package fdtable tracks per-descriptor metadata the hook package needs
// but the kernel has no notion of: whether a fd is a socket, whether it
// has been closed, the user's last requested O_NONBLOCK setting versus the
// sys-level one this module forces on every socket, and the recv/send/
// connect timeouts set via setsockopt. It is the Go equivalent of sylar's
// FdManager/FdCtx pair (see original_source/sylar/hook.cc and its
// fd_manager.h collaborator).
package fdtable

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// NoTimeout is the sentinel RecvTimeout/SendTimeout/ConnectTimeout value
// meaning "block forever" — sylar used -1 (as an unsigned time cast to
// -1); here it is a named negative Duration. The hook package arms a
// deadline only for a positive timeout, so a zero timeout also means
// "block forever" there.
const NoTimeout time.Duration = -1

// TimeoutSelector distinguishes SO_RCVTIMEO from SO_SNDTIMEO, matching the
// two-argument shape of sylar's FdCtx::getTimeout/setTimeout.
type TimeoutSelector int

const (
	TimeoutRecv TimeoutSelector = iota
	TimeoutSend
)

// Entry is one descriptor's metadata. The zero value is not meaningful;
// always obtain an Entry through [Table.Get] or [Table.GetOrCreate].
type Entry struct {
	mu sync.Mutex

	fd int

	isSocket     bool
	isClosed     bool
	sysNonblock  bool
	userNonblock bool

	recvTimeout    time.Duration
	sendTimeout    time.Duration
	connectTimeout time.Duration
}

// Fd returns the descriptor this entry describes.
func (e *Entry) Fd() int { return e.fd }

// IsSocket reports whether this descriptor was a socket at registration
// time. Immutable for the entry's lifetime — a fd's socket-ness cannot
// change without the number being reused for a different kernel object,
// which in this table always means going through [Table.Remove] first.
func (e *Entry) IsSocket() bool {
	return e.isSocket
}

// Closed reports whether [Table.Remove] has already been called for this
// entry. Kept on the entry itself (rather than just deleting it from the
// table) so a racing doIO call that already captured a reference sees
// consistent state rather than a nil map lookup.
func (e *Entry) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isClosed
}

func (e *Entry) setClosed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isClosed = true
}

// SysNonblock reports the nonblocking flag this module forces at the
// kernel level. Always true for sockets, regardless of what the caller
// asked for — the suspend/resume protocol in hook.doIO requires EAGAIN to
// come back instead of the calling goroutine actually blocking.
func (e *Entry) SysNonblock() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sysNonblock
}

// UserNonblock reports the nonblocking-ness the caller last asked for via
// Fcntl(F_SETFL) or Ioctl(FIONBIO). A caller that asked for blocking mode
// still observes blocking semantics even though the descriptor is
// sys-nonblocking underneath — doIO only suspends to the reactor when
// UserNonblock is false.
func (e *Entry) UserNonblock() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userNonblock
}

// SetUserNonblock updates the user-visible nonblocking flag.
func (e *Entry) SetUserNonblock(nonblock bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userNonblock = nonblock
}

// Timeout returns the recv or send timeout (per sel), or [NoTimeout] if
// none was set.
func (e *Entry) Timeout(sel TimeoutSelector) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sel == TimeoutRecv {
		return e.recvTimeout
	}
	return e.sendTimeout
}

// SetTimeout stores the recv or send timeout, as hook.Setsockopt does for
// SO_RCVTIMEO/SO_SNDTIMEO in addition to forwarding the call to the
// kernel (original_source/sylar/hook.cc's setsockopt, which stores the
// millisecond value on the FdCtx on top of the real setsockopt call).
func (e *Entry) SetTimeout(sel TimeoutSelector, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sel == TimeoutRecv {
		e.recvTimeout = d
	} else {
		e.sendTimeout = d
	}
}

// ConnectTimeout returns the timeout hook.Connect should use for this
// descriptor if the caller didn't pass one explicitly.
func (e *Entry) ConnectTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectTimeout
}

// SetConnectTimeout overrides the default connect timeout for this
// descriptor.
func (e *Entry) SetConnectTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectTimeout = d
}

// Table is the process-wide descriptor registry, keyed by fd number.
// Descriptor numbers get reused by the kernel the instant they are
// closed, so entries are removed from the table synchronously in
// [Table.Remove] before the real close(2) runs in hook.Close — there is
// no generation-counter layer here because the table never hands out a
// reference to a number the kernel might already have recycled: Remove
// and the real close happen back-to-back on the same goroutine.
type Table struct {
	mu      sync.RWMutex
	entries map[int]*Entry

	defaultConnectTimeout func() time.Duration
}

// NewTable constructs an empty Table. defaultConnectTimeout is consulted
// for every newly registered socket's ConnectTimeout; pass a function
// backed by a live config.Var so updates apply to sockets registered
// after the change (matching sylar's g_tcp_connect_timeout ConfigVar).
func NewTable(defaultConnectTimeout func() time.Duration) *Table {
	return &Table{
		entries:               make(map[int]*Entry),
		defaultConnectTimeout: defaultConnectTimeout,
	}
}

// Get returns the entry for fd, or ok=false if fd was never registered
// (or has since been removed).
func (t *Table) Get(fd int) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[fd]
	return e, ok
}

// GetOrCreate returns the existing entry for fd, or probes the kernel via
// fstat to classify it and registers a fresh entry if none exists yet.
// This is what lets a program call hook.Read on a fd it obtained from a
// non-hooked code path (e.g. os.Stdin) without ever calling hook.Socket.
func (t *Table) GetOrCreate(fd int) (*Entry, error) {
	if e, ok := t.Get(fd); ok {
		return e, nil
	}

	isSocket, err := ProbeKind(fd)
	if err != nil {
		return nil, err
	}
	return t.Register(fd, isSocket)
}

// Register creates a fresh entry for fd, forcing sys-nonblock on if
// isSocket is true (sylar's FdCtx::init: "if it's a socket, always set it
// to nonblocking"). Replaces any existing entry for the same number,
// which is the expected case right after accept()/socket() return a
// number the kernel just recycled.
func (t *Table) Register(fd int, isSocket bool) (*Entry, error) {
	e := &Entry{
		fd:          fd,
		isSocket:    isSocket,
		recvTimeout: NoTimeout,
		sendTimeout: NoTimeout,
	}

	if isSocket {
		if err := unix.SetNonblock(fd, true); err != nil {
			return nil, err
		}
		e.sysNonblock = true
		e.userNonblock = false
		if t.defaultConnectTimeout != nil {
			e.connectTimeout = t.defaultConnectTimeout()
		} else {
			e.connectTimeout = NoTimeout
		}
	} else {
		e.connectTimeout = NoTimeout
	}

	t.mu.Lock()
	t.entries[fd] = e
	t.mu.Unlock()
	return e, nil
}

// Remove marks the entry closed and drops it from the table. Call this
// before issuing the real close(2), never after — once the kernel call
// returns, the number may already have been reused by an unrelated
// accept() on another goroutine.
func (t *Table) Remove(fd int) {
	t.mu.Lock()
	e, ok := t.entries[fd]
	delete(t.entries, fd)
	t.mu.Unlock()

	if ok {
		e.setClosed()
	}
}

// ProbeKind reports whether fd refers to a socket, via fstat+S_IFMT —
// sylar's FdCtx::init does the same probe with a raw stat() syscall.
func ProbeKind(fd int) (isSocket bool, err error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return false, err
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFSOCK, nil
}
