package reactor

import (
	"context"
	"iter"
)

// Coroutine0 is a fiber body that returns only an error.
type Coroutine0 func(ctx context.Context) error

// Spawn starts this coroutine as a background [Fiber].
func (c Coroutine0) Spawn(ctx context.Context) *Fiber[any] {
	return Spawn[any](ctx, func(ctx context.Context) (any, error) {
		return nil, c(ctx)
	})
}

// Coroutine1 is a fiber body that returns a result or an error.
type Coroutine1[R any] func(ctx context.Context) (R, error)

// Spawn starts this coroutine as a background [Fiber].
func (c Coroutine1[R]) Spawn(ctx context.Context) *Fiber[R] {
	return Spawn(ctx, c)
}

// tasker is an untyped view of a [Fiber], used by [Reactor] to drive
// whichever fiber is currently yielding without knowing its result type.
type tasker interface {
	Futurer
	yield(ctx context.Context, fut Futurer) error
}

// Fiber is this module's stand-in for the stackful coroutine `spec.md`
// treats as an external collaborator: a unit of cooperative execution that
// suspends at [Future.Await] and resumes when the reactor schedules it
// again. It is built on [iter.Pull] rather than a real separate stack —
// every "yield" is a value handed across the iterator boundary, which is
// what makes the yield points explicit and auditable instead of hidden
// behind an async/await keyword.
type Fiber[RetType any] struct {
	reactor *Reactor
	yielder func(Futurer) bool

	next       func() (Futurer, bool)
	stop       func()
	ctx        context.Context
	cancel     context.CancelCauseFunc
	pendingFut Futurer
	resultFut  *Future[RetType]
}

// Spawn starts the given coroutine as a new [Fiber] on the [Reactor]
// running in ctx.
func Spawn[RetType any](ctx context.Context, coro Coroutine1[RetType]) *Fiber[RetType] {
	ctx, cancel := context.WithCancelCause(ctx)
	fib := &Fiber[RetType]{
		reactor:   Current(ctx),
		resultFut: NewFuture[RetType](),
		ctx:       ctx,
		cancel:    cancel,
	}

	// the entirety of the suspend/resume mechanism is predicated on this
	// iter.Pull call: every Await down the coroutine's call stack ends up
	// invoking the yield func passed to this closure.
	next, stop := iter.Pull(func(yield func(Futurer) bool) {
		fib.yielder = yield
		fib.resultFut.SetResult(coro(ctx))
	})
	fib.resultFut.AddDoneCallback(func(err error) {
		if fib.pendingFut != nil {
			fib.pendingFut.Cancel(nil)
		}
		fib.cancel(err)
	})
	fib.next = next
	fib.stop = stop

	// defer the first step to after control returns to the reactor so a
	// fiber cancelled immediately after Spawn never runs at all
	fib.reactor.RunCallback(func() {
		if fib.resultFut.HasResult() {
			return
		} else if err := context.Cause(ctx); err != nil {
			fib.resultFut.Cancel(err)
		} else {
			fib.step()
		}
	})
	return fib
}

// step advances the coroutine until its next suspension point.
func (fib *Fiber[_]) step() (ok bool) {
	fib.reactor.withFiber(fib, func() {
		fib.pendingFut, ok = fib.next()
	})
	if ok {
		if fib.pendingFut != nil {
			fib.pendingFut.AddDoneCallback(func(err error) {
				fib.step()
			})
		} else {
			// a nil yielded future means "yield to the reactor for one tick"
			fib.reactor.RunCallback(func() {
				fib.step()
			})
		}
		return true
	}
	fib.pendingFut = nil
	fib.stop()
	return false
}

// Stop aborts the fiber without running any more of its body. Prefer
// [Futurer.Cancel], which also propagates an error to anyone awaiting it.
func (fib *Fiber[_]) Stop() {
	fib.stop()
}

func (fib *Fiber[_]) yield(childCtx context.Context, fut Futurer) error {
	// cancel if the fiber's own context was cancelled
	if err := context.Cause(fib.ctx); err != nil {
		fib.resultFut.Cancel(err)
		if fut != nil {
			fut.Cancel(err)
		}
		return fib.Err()
	}

	// cancel if the caller-supplied context was cancelled
	if err := childCtx.Err(); err != nil {
		if fut != nil {
			fut.Cancel(err)
		}
		return fib.Err()
	}

	if !fib.yielder(fut) {
		fib.resultFut.Cancel(nil)
		return fib.Err()
	}

	// the awaited future has resolved by the time control returns here;
	// re-check both contexts since either may have been cancelled while
	// suspended
	if err := context.Cause(fib.ctx); err != nil {
		fib.resultFut.Cancel(err)
		return fib.Err()
	}
	if err := childCtx.Err(); err != nil {
		fib.resultFut.Cancel(err)
		return fib.Err()
	}
	return nil
}

func (fib *Fiber[_]) HasResult() bool {
	return fib.resultFut.HasResult()
}

func (fib *Fiber[RetType]) Result() (RetType, error) {
	return fib.resultFut.Result()
}

func (fib *Fiber[_]) Err() error {
	return fib.resultFut.Err()
}

func (fib *Fiber[RetType]) Future() *Future[RetType] {
	return fib.resultFut
}

func (fib *Fiber[RetType]) Await(ctx context.Context) (RetType, error) {
	return fib.resultFut.Await(ctx)
}

func (fib *Fiber[RetType]) MustAwait(ctx context.Context) RetType {
	return fib.resultFut.MustAwait(ctx)
}

func (fib *Fiber[RetType]) Shield() *Future[RetType] {
	return fib.resultFut.Shield()
}

func (fib *Fiber[RetType]) WriteResultTo(dst *RetType) Awaitable[RetType] {
	fib.resultFut.WriteResultTo(dst)
	return fib
}

func (fib *Fiber[_]) Cancel(err error) {
	fib.resultFut.Cancel(err)
}

func (fib *Fiber[RetType]) AddResultCallback(callback func(result RetType, err error)) Awaitable[RetType] {
	fib.resultFut.AddResultCallback(callback)
	return fib
}

func (fib *Fiber[_]) AddDoneCallback(callback func(error)) Futurer {
	fib.resultFut.AddDoneCallback(callback)
	return fib
}
