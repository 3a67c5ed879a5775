package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type runningReactor struct{}

// Current returns the [Reactor] running in ctx. Panics if none is running —
// matching the teacher package's RunningLoop, this should only ever be
// called from code running on a fiber, never from a manually launched
// goroutine without first threading the context through.
func Current(ctx context.Context) *Reactor {
	r, _ := ctx.Value(runningReactor{}).(*Reactor)
	if r == nil {
		panic("reactor: no Reactor running in this context")
	}
	return r
}

// Reactor is the per-thread I/O multiplexer and fiber scheduler from
// `spec.md` §2, combined into one type exactly the way the teacher package
// combined its EventLoop and Poller: a single goroutine drives epoll_wait,
// runs due timers, and steps whichever fiber became runnable, one at a
// time. "Per-thread" in `spec.md`'s sense maps onto "per-Reactor" here,
// since a Reactor never runs more than one fiber concurrently and its
// HookEnableFlag equivalent ([Reactor.hookEnabled]) is private to it.
type Reactor struct {
	timers timerQueue
	ready  *readyQueue

	fromThread chan func()
	doneFut    *Future[any]

	poller     eventPoller
	registered map[int]struct{}
	waiters    map[int]*fdWaiters

	currentFibers []tasker
	hookEnabled   bool

	arena *witnessArena
}

type fdWaiters struct {
	read, write func()
}

// NewReactor constructs a Reactor. Call [Reactor.Run] to start it.
func NewReactor() (*Reactor, error) {
	poller, err := newEventPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		poller:     poller,
		fromThread: make(chan func(), 128),
		ready:      newReadyQueue(),
		registered: make(map[int]struct{}),
		waiters:    make(map[int]*fdWaiters),
		arena:      newWitnessArena(),
	}, nil
}

// Run drives the reactor until main's fiber completes and no callbacks or
// timers remain pending, or ctx is cancelled.
func (r *Reactor) Run(ctx context.Context, main Coroutine0) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	defer r.poller.close()

	ctx = context.WithValue(ctx, runningReactor{}, r)
	mainFiber := main.Spawn(ctx)
	mainFiber.AddDoneCallback(func(err error) {
		if err != nil {
			cancel(err)
		}
	})

	for ctx.Err() == nil {
		r.drainThreadsafeQueue(ctx)
		r.runPending(ctx)

		if r.doneFut != nil && r.ready.empty() && r.timers.empty() {
			r.doneFut.SetResult(nil, nil)
			r.doneFut = nil
			continue
		}

		if ctx.Err() != nil || (mainFiber.HasResult() && r.ready.empty() && r.timers.empty()) {
			break
		}

		timeout := 30 * time.Second
		if !r.timers.empty() {
			timeout = r.timers.timeUntilNext()
		}
		if deadline, ok := ctx.Deadline(); ok {
			if until := time.Until(deadline); until < timeout {
				timeout = until
			}
		}

		ready, err := r.poller.wait(timeout)
		if err != nil {
			return err
		}
		r.dispatchReady(ready)
	}

	return context.Cause(ctx)
}

func (r *Reactor) drainThreadsafeQueue(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case cb := <-r.fromThread:
			r.ready.push(cb)
		default:
			return
		}
	}
}

func (r *Reactor) runPending(ctx context.Context) {
	for ctx.Err() == nil {
		r.ready.runAll()
		if !r.timers.runDue() {
			return
		}
	}
}

func (r *Reactor) dispatchReady(ready []readyFd) {
	for _, rf := range ready {
		w, ok := r.waiters[rf.fd]
		if !ok {
			continue
		}
		if rf.kinds&EventRead != 0 && w.read != nil {
			cb := w.read
			w.read = nil
			cb()
		}
		if rf.kinds&EventWrite != 0 && w.write != nil {
			cb := w.write
			w.write = nil
			cb()
		}
	}
}

// withFiber pushes f onto the current-fiber stack for the duration of
// step, so [Reactor.Yield] knows whose yielder to invoke. A stack rather
// than a single field because a fiber's body can itself drive a nested
// Reactor.Run (not common, but not disallowed).
func (r *Reactor) withFiber(f tasker, step func()) {
	old := r.currentFibers
	r.currentFibers = append(r.currentFibers, f)

	step()

	if r.currentFiber() != f {
		panic("reactor: context switched from unexpected fiber")
	}
	r.currentFibers = old
}

func (r *Reactor) currentFiber() tasker {
	return r.currentFibers[len(r.currentFibers)-1]
}

// Yield suspends the currently running fiber until fut completes.
func (r *Reactor) Yield(ctx context.Context, fut Futurer) error {
	return r.currentFiber().yield(ctx, fut)
}

// ScheduleCallback arms a [Timer] that runs callback after d elapses. This
// is the TimerSet's `add(deadline, cb)` half of `spec.md` §2; pair with
// [Reactor.AddConditionalTimer] for the weak-witness variant the generic
// I/O transform needs.
func (r *Reactor) ScheduleCallback(d time.Duration, callback func()) *Timer {
	t := newTimer(d, callback)
	r.timers.add(t)
	return t
}

// AddTimer is an alias for [Reactor.ScheduleCallback] matching the
// `add_timer(ms, cb)` contract name in `spec.md` §6.
func (r *Reactor) AddTimer(d time.Duration, callback func()) *Timer {
	return r.ScheduleCallback(d, callback)
}

// NewWaitToken allocates a fresh [WaitToken] from this reactor's witness
// arena. One is created per would-block suspension (`spec.md` §4.2 step 6).
func (r *Reactor) NewWaitToken() *WaitToken {
	return r.arena.newToken()
}

// AddConditionalTimer arms a timer whose callback first upgrades witness
// and is a no-op if the upgrade fails — the "conditional timer" from
// `spec.md`'s glossary. onFire runs only if the [WaitToken] the witness
// refers to is still live.
func (r *Reactor) AddConditionalTimer(d time.Duration, witness Witness, onFire func(tok *WaitToken)) *Timer {
	return r.ScheduleCallback(d, func() {
		if tok, ok := witness.Upgrade(); ok {
			onFire(tok)
		}
	})
}

// RunCallback schedules callback for execution on the reactor's own
// goroutine as soon as possible. Not safe to call from another goroutine;
// use [Reactor.RunCallbackThreadsafe] for that.
func (r *Reactor) RunCallback(callback func()) {
	r.ready.push(callback)
}

// RunCallbackThreadsafe schedules callback to run on the reactor's
// goroutine, waking it if it is currently blocked in epoll_wait. Safe to
// call from any goroutine.
func (r *Reactor) RunCallbackThreadsafe(ctx context.Context, callback func()) {
	r.fromThread <- callback
	if err := r.poller.wakeup(); err != nil {
		slog.WarnContext(ctx, "reactor: could not wake reactor from another goroutine", slog.Any("error", err))
	}
}

// WaitForCallbacks returns a [Future] that resolves once there are no more
// pending zero-delay or timed callbacks — useful in tests that want to let
// a burst of scheduled work drain before asserting on it.
func (r *Reactor) WaitForCallbacks() *Future[any] {
	if r.doneFut == nil {
		r.doneFut = NewFuture[any]()
	}
	return r.doneFut
}

// AddEvent registers onReady to run the next time fd becomes ready for
// kind — the reactor's half of `spec.md` §4.2 step 3 ("the reactor's
// callback, when fired, schedules this fiber"). Each (fd, kind) pair holds
// at most one pending callback; a second AddEvent for the same pair
// replaces it.
func (r *Reactor) AddEvent(fd int, kind EventKind, onReady func()) error {
	w, ok := r.waiters[fd]
	if !ok {
		if err := r.poller.register(fd); err != nil {
			return err
		}
		r.registered[fd] = struct{}{}
		w = &fdWaiters{}
		r.waiters[fd] = w
	}

	switch kind {
	case EventRead:
		w.read = onReady
	case EventWrite:
		w.write = onReady
	default:
		return fmt.Errorf("reactor: invalid event kind %v for fd %d", kind, fd)
	}
	return nil
}

// CancelEvent removes any pending registration for (fd, kind) and, if one
// was pending, runs its callback synchronously before returning — this is
// what lets a firing timer resume the waiting fiber in the same call that
// cancels its event (`spec.md` §4.2 step 2).
func (r *Reactor) CancelEvent(fd int, kind EventKind) {
	w, ok := r.waiters[fd]
	if !ok {
		return
	}

	switch kind {
	case EventRead:
		if w.read != nil {
			cb := w.read
			w.read = nil
			cb()
		}
	case EventWrite:
		if w.write != nil {
			cb := w.write
			w.write = nil
			cb()
		}
	}
}

// CancelAll runs every pending callback registered on fd synchronously,
// then unregisters fd from the poller entirely. This is the primitive
// `hook.Close` uses to guarantee every fiber waiting on a descriptor
// resumes (with a cancellation error) before the underlying close(2)
// happens (`spec.md` §4.7, §5).
func (r *Reactor) CancelAll(fd int) {
	if w, ok := r.waiters[fd]; ok {
		if w.read != nil {
			cb := w.read
			w.read = nil
			cb()
		}
		if w.write != nil {
			cb := w.write
			w.write = nil
			cb()
		}
	}

	if _, ok := r.registered[fd]; ok {
		_ = r.poller.unregister(fd)
		delete(r.registered, fd)
	}
	delete(r.waiters, fd)
}

// SetHookEnable flips this reactor's HookEnableFlag. System code that must
// never cooperatively suspend — most notably the reactor's own fiber
// driving an unrelated blocking subsystem — should leave this false.
func (r *Reactor) SetHookEnable(enabled bool) {
	r.hookEnabled = enabled
}

// HookEnabled reports this reactor's current HookEnableFlag.
func (r *Reactor) HookEnabled() bool {
	return r.hookEnabled
}

// SetHookEnable is the context-scoped form of [Reactor.SetHookEnable],
// matching the `set_hook_enable(bool)` contract in `spec.md` §6.
func SetHookEnable(ctx context.Context, enabled bool) {
	Current(ctx).SetHookEnable(enabled)
}

// IsHookEnable is the context-scoped form of [Reactor.HookEnabled],
// matching the `is_hook_enable() -> bool` contract in `spec.md` §6.
func IsHookEnable(ctx context.Context) bool {
	return Current(ctx).HookEnabled()
}
