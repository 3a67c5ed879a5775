package reactor

import (
	"context"
	"errors"
)

// ErrNotReady is returned by [Future.Result] when the future has not yet
// completed.
var ErrNotReady = errors.New("reactor: future is still pending")

// Futurer is an untyped view of an [Awaitable], useful for storing
// heterogeneous Awaitable instances in a container.
type Futurer interface {
	// HasResult reports whether this Futurer has completed, successfully
	// or with an error.
	HasResult() bool
	// Err returns a non-nil error if this Futurer completed with an error
	// or was cancelled.
	Err() error
	// AddDoneCallback registers a type-unaware callback to run once this
	// Futurer completes. If the Futurer has already completed, the
	// callback runs immediately.
	AddDoneCallback(callback func(error)) Futurer
	// Cancel cancels this Futurer with err. If err is nil,
	// [context.Canceled] is used. A no-op if already completed.
	Cancel(err error)
}

// Awaitable is a value that may complete at a later point in time and can
// be awaited from a [Fiber] to suspend it until the value is ready.
type Awaitable[T any] interface {
	Futurer
	// Await suspends the calling fiber until this Awaitable completes,
	// returning its result.
	Await(ctx context.Context) (T, error)
	// MustAwait is [Awaitable.Await] but panics on error.
	MustAwait(ctx context.Context) T
	// Shield returns a new Future that completes when this Awaitable does,
	// but which cancelling will not propagate back to this Awaitable.
	Shield() *Future[T]
	// AddResultCallback registers a type-aware completion callback.
	AddResultCallback(callback func(result T, err error)) Awaitable[T]
	// WriteResultTo registers dst to receive the result on success.
	WriteResultTo(dst *T) Awaitable[T]
	// Future returns the underlying Future.
	Future() *Future[T]
	// Result returns the completed result, or [ErrNotReady].
	Result() (T, error)
}

// Future is a value container for the result of a pending operation. Every
// suspension point in this module — a would-block retry, a timer, an event
// delivery — resolves through exactly one Future.
type Future[ResType any] struct {
	done      bool
	result    ResType
	err       error
	callbacks []func(ResType, error)
}

// NewFuture returns a new, unresolved [Future].
func NewFuture[ResType any]() *Future[ResType] {
	return &Future[ResType]{}
}

func (f *Future[ResType]) HasResult() bool {
	return f.done
}

func (f *Future[ResType]) Err() error {
	return f.err
}

func (f *Future[ResType]) Result() (ResType, error) {
	if f.done {
		return f.result, f.err
	}
	var zero ResType
	return zero, ErrNotReady
}

func (f *Future[ResType]) Future() *Future[ResType] {
	return f
}

func (f *Future[ResType]) AddDoneCallback(callback func(error)) Futurer {
	f.AddResultCallback(func(_ ResType, err error) {
		callback(err)
	})
	return f
}

func (f *Future[ResType]) AddResultCallback(callback func(ResType, error)) Awaitable[ResType] {
	if f.HasResult() {
		callback(f.result, f.err)
	} else {
		f.callbacks = append(f.callbacks, callback)
	}
	return f
}

func (f *Future[ResType]) WriteResultTo(dest *ResType) Awaitable[ResType] {
	return f.AddResultCallback(func(result ResType, err error) {
		if err == nil {
			*dest = result
		}
	})
}

func (f *Future[ResType]) Await(ctx context.Context) (ResType, error) {
	if err := Current(ctx).Yield(ctx, f); err != nil {
		var zero ResType
		return zero, err
	}
	return f.Result()
}

func (f *Future[ResType]) MustAwait(ctx context.Context) ResType {
	res, err := f.Await(ctx)
	if err != nil {
		panic(err)
	}
	return res
}

func (f *Future[ResType]) Cancel(err error) {
	if err == nil {
		err = context.Canceled
	}
	var zero ResType
	f.SetResult(zero, err)
}

func (f *Future[ResType]) Shield() *Future[ResType] {
	if f.HasResult() {
		return f
	}

	fut := NewFuture[ResType]()
	f.AddResultCallback(func(result ResType, err error) {
		fut.SetResult(result, err)
	})
	fut.AddResultCallback(func(result ResType, err error) {
		if !errors.Is(err, context.Canceled) {
			f.SetResult(result, err)
		}
	})
	return fut
}

// SetResult populates this Future with a terminal result, running any
// registered callbacks. A no-op once the Future already has a result —
// this is what makes cancellation races (a timer firing the same instant
// an event is delivered) harmless: whichever caller gets here first wins.
func (f *Future[ResType]) SetResult(result ResType, err error) {
	if f.HasResult() {
		return
	}

	f.result, f.err = result, err
	f.done = true

	for _, callback := range f.callbacks {
		callback(result, err)
	}
}
