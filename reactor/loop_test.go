package reactor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func testReactor(t *testing.T, name string, wantErr bool, wantRuntime time.Duration, main func(ctx context.Context, r *Reactor, t *testing.T) error) {
	t.Run(name, func(t *testing.T) {
		start := time.Now()
		r, err := NewReactor()
		if err != nil {
			t.Fatalf("NewReactor(): %v", err)
		}

		ctx := context.Background()
		if wantRuntime > 0 {
			timeoutCtx, cancel := context.WithTimeout(ctx, wantRuntime+time.Millisecond*500)
			defer cancel()
			ctx = timeoutCtx
		}

		err = r.Run(ctx, func(ctx context.Context) error {
			return main(ctx, r, t)
		})
		elapsed := time.Since(start)

		tolerance := wantRuntime.Seconds() / 20
		if wantRuntime > 0 && math.Abs(elapsed.Seconds()-wantRuntime.Seconds()) > tolerance {
			t.Errorf("expected %s, got: %s (difference: %f)", wantRuntime, elapsed, math.Abs(elapsed.Seconds()-wantRuntime.Seconds()))
		}
		if (err != nil) != wantErr {
			t.Errorf("expected error %v, got: %v", wantErr, err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("deadline exceeded")
		}
	})
}

func TestSleep(t *testing.T) {
	syncSleep := func(_ context.Context, duration time.Duration) error {
		time.Sleep(duration)
		return nil
	}

	tests := []struct {
		name      string
		sleepFunc func(context.Context, time.Duration) error
		spawnFunc func(context.Context, func(context.Context) (int, error)) Awaitable[int]

		wantRuntime time.Duration
	}{
		{
			name:      "fiber async sleep",
			sleepFunc: Sleep,
			spawnFunc: func(ctx context.Context, f func(context.Context) (int, error)) Awaitable[int] {
				return Spawn(ctx, f)
			},
			wantRuntime: time.Millisecond * 50,
		},
		{
			name:      "goroutine sync sleep",
			sleepFunc: syncSleep,
			spawnFunc: func(ctx context.Context, f func(context.Context) (int, error)) Awaitable[int] {
				return Go(ctx, f)
			},
			wantRuntime: time.Millisecond * 50,
		},
	}

	for _, tt := range tests {
		testReactor(t, tt.name, false, tt.wantRuntime, func(ctx context.Context, r *Reactor, t *testing.T) error {
			fibers := make([]Futurer, 5)
			results := make([]int, 5)
			for i := range fibers {
				fibers[i] = tt.spawnFunc(ctx, func(ctx context.Context) (int, error) {
					if err := tt.sleepFunc(ctx, time.Millisecond*10*time.Duration(i+1)); err != nil {
						return 0, err
					}
					return i * 10, nil
				}).WriteResultTo(&results[i])
			}

			if _, err := Wait(WaitAll, fibers...).Await(ctx); err != nil {
				return err
			}

			for i := range results {
				wantResult := i * 10
				if results[i] != wantResult {
					t.Errorf("expected return value %d, got: %d", wantResult, results[i])
				}
			}
			return nil
		})
	}
}

func TestFuture_Result(t *testing.T) {
	fut1 := NewFuture[int]()
	_, err := fut1.Result()
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Result(): expected ErrNotReady, got: %v", err)
	}

	fut1.SetResult(10, nil)
	result, err := fut1.Result()
	if result != 10 {
		t.Errorf("Result(): expected 10, got: %d", result)
	}
	if err != nil {
		t.Errorf("Result(): expected nil error, got: %v", err)
	}

	fut1.Cancel(nil)
	fut1.SetResult(42, errors.New("oops"))

	result, err = fut1.Result()
	if result != 10 {
		t.Errorf("Result(): expected 10, got: %d", result)
	}
	if err != nil {
		t.Errorf("Result(): expected nil error, got: %v", err)
	}

	fut2 := NewFuture[int]()
	fut2.Cancel(nil)
	_, err = fut2.Result()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Result(): expected context.Canceled, got: %v", err)
	}

	fut3 := NewFuture[int]()
	fut3.Cancel(sql.ErrNoRows)
	_, err = fut3.Result()
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Result(): expected sql.ErrNoRows, got: %v", err)
	}

	fut4 := NewFuture[int]()
	fut4.SetResult(42, sql.ErrConnDone)
	result, err = fut4.Result()
	if result != 42 {
		t.Errorf("Result(): expected 42, got: %d", result)
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Result(): expected sql.ErrConnDone, got: %v", err)
	}
}

func TestGoroutineHasNoReactor(t *testing.T) {
	testReactor(t, "goroutine has no reactor", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		result, err := Go(ctx, func(ctx context.Context) (result int, err error) {
			defer func() {
				if rec := recover(); rec == nil {
					t.Errorf("goroutine did not panic")
				}
				result = 42
			}()
			Current(ctx) // panics: no Reactor in a plain goroutine's context
			return 0, nil
		}).Await(ctx)

		if err != nil {
			return err
		}
		if result != 42 {
			t.Errorf("unexpected return value: %d", result)
		}
		return nil
	})
}

func TestFiber_Cancel(t *testing.T) {
	for numFuts := range 5 {
		for numFibers := 1; numFibers < 5; numFibers++ {
			for cancelOn := range numFuts + 2 {
				name := fmt.Sprintf("%d_%d_%d", numFuts, numFibers, cancelOn)
				testReactor(t, name, false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
					counts := make([]int, numFibers)
					futs := make([]*Future[int], numFuts)
					for i := range futs {
						futs[i] = NewFuture[int]()
					}
					fibers := make([]*Fiber[any], numFibers)
					for i := range fibers {
						i := i
						fibers[i] = Spawn(ctx, func(ctx context.Context) (any, error) {
							for _, fut := range futs {
								counts[i]++
								if _, err := fut.Await(ctx); err != nil {
									return nil, err
								}
							}
							return nil, nil
						})
					}

					fibers[0].AddDoneCallback(func(err error) {
						for _, f := range fibers {
							f.Cancel(nil)
						}
					})

					// yield to the reactor once to give the fibers a chance to start
					if err := r.Yield(ctx, nil); err != nil {
						return err
					}

					for i, fut := range futs {
						if i == cancelOn {
							fut.Cancel(nil)
						} else {
							fut.SetResult(i, nil)
						}
					}

					for i, fiber := range fibers {
						if !fiber.HasResult() {
							t.Errorf("expected fiber %d to have finished, but it did not", i+1)
						}
						wantCount := min(cancelOn+1, numFuts)
						if counts[i] != wantCount {
							t.Errorf("expected fiber %d to have run %d iterations, but got: %d", i+1, wantCount, counts[i])
						}
					}

					wantErr := cancelOn < len(futs)
					if err := fibers[0].Err(); (err != nil) != wantErr {
						t.Errorf("expected error %t, but got: %v", wantErr, err)
					}
					for j, fiber := range fibers[1:] {
						if fiber.Err() == nil {
							t.Errorf("expected fiber %d to be cancelled, but it was not", j+1)
						}
					}
					return nil
				})
			}
		}
	}
}

func TestGetFirstResult(t *testing.T) {
	tests := []struct {
		name         string
		sleeps       []int
		errors       []bool
		wantRuntime  time.Duration
		wantFinished int
		wantResult   int
		wantErr      bool
	}{
		{
			name:         "basic",
			sleeps:       []int{1, 2, 3, 4, 5},
			errors:       []bool{false, false, false, false, false},
			wantRuntime:  time.Millisecond * 100,
			wantFinished: 1,
			wantResult:   10,
			wantErr:      false,
		},
		{
			name:         "reverse",
			sleeps:       []int{5, 4, 3, 2, 1},
			errors:       []bool{false, false, false, false, false},
			wantRuntime:  time.Millisecond * 100,
			wantFinished: 1,
			wantResult:   50,
			wantErr:      false,
		},
		{
			name:         "no sleep",
			sleeps:       []int{-1, -1, -1, -1, -1, -1},
			errors:       []bool{true, true, false, false, false, false},
			wantRuntime:  0,
			wantFinished: 3,
			wantResult:   30,
			wantErr:      false,
		},
		{
			name:         "all errors",
			sleeps:       []int{1, 1, 1, 1, 5, 1, 1},
			errors:       []bool{true, true, true, true, true, true, true},
			wantRuntime:  time.Millisecond * 500,
			wantFinished: 7,
			wantResult:   0,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		testReactor(t, tt.name, tt.wantErr, tt.wantRuntime, func(ctx context.Context, r *Reactor, t *testing.T) error {
			coros := make([]Coroutine1[int], len(tt.sleeps))
			var finished int
			for i := range len(coros) {
				i := i
				coros[i] = func(ctx context.Context) (res int, err error) {
					if tt.sleeps[i] >= 0 {
						if err := Sleep(ctx, time.Millisecond*100*time.Duration(tt.sleeps[i])); err != nil {
							return 0, err
						}
					}
					if tt.errors[i] {
						err = errors.New("oops")
					}
					finished++
					return (i + 1) * 10, err
				}
			}

			res, err := GetFirstResult(ctx, coros...)
			if _, err := r.WaitForCallbacks().Await(ctx); err != nil {
				return err
			}

			if res != tt.wantResult {
				t.Errorf("expected the result %d, got: %d", tt.wantResult, res)
			}
			if finished != tt.wantFinished {
				t.Errorf("expected %d fiber(s) to finish, got: %d", tt.wantFinished, finished)
			}

			return err
		})
	}
}

func TestQueue(t *testing.T) {
	testReactor(t, "push before get", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		var q Queue[int]
		q.Push(1)
		q.Push(2)

		v, err := q.Get().Await(ctx)
		if err != nil || v != 1 {
			t.Errorf("expected 1, got %d (err: %v)", v, err)
		}
		v, err = q.Get().Await(ctx)
		if err != nil || v != 2 {
			t.Errorf("expected 2, got %d (err: %v)", v, err)
		}
		return nil
	})

	testReactor(t, "get before push", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		var q Queue[int]
		fiber := Spawn(ctx, func(ctx context.Context) (int, error) {
			return q.Get().Await(ctx)
		})
		if err := r.Yield(ctx, nil); err != nil {
			return err
		}
		q.Push(7)
		v, err := fiber.Await(ctx)
		if err != nil || v != 7 {
			t.Errorf("expected 7, got %d (err: %v)", v, err)
		}
		return nil
	})
}

func TestMutex(t *testing.T) {
	testReactor(t, "mutual exclusion", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		var mu Mutex
		var order []int

		run := func(n int) Coroutine1[any] {
			return func(ctx context.Context) (any, error) {
				if err := mu.Lock(ctx); err != nil {
					return nil, err
				}
				defer mu.Unlock()
				order = append(order, n)
				return nil, Sleep(ctx, time.Millisecond)
			}
		}

		f1 := Spawn(ctx, run(1))
		f2 := Spawn(ctx, run(2))
		if _, err := Wait(WaitAll, f1, f2).Await(ctx); err != nil {
			return err
		}

		if len(order) != 2 {
			t.Errorf("expected both fibers to run, got: %v", order)
		}
		return nil
	})
}

func TestConditionalTimer(t *testing.T) {
	testReactor(t, "witness still live", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		tok := r.NewWaitToken()
		fired := false
		r.AddConditionalTimer(time.Millisecond, tok.Witness(), func(tok *WaitToken) {
			fired = true
		})
		if err := Sleep(ctx, time.Millisecond*10); err != nil {
			return err
		}
		if !fired {
			t.Errorf("expected conditional timer to fire")
		}
		return nil
	})

	testReactor(t, "witness released before fire", false, -1, func(ctx context.Context, r *Reactor, t *testing.T) error {
		tok := r.NewWaitToken()
		witness := tok.Witness()
		fired := false
		r.AddConditionalTimer(time.Millisecond*5, witness, func(tok *WaitToken) {
			fired = true
		})

		tok.Release()

		if err := Sleep(ctx, time.Millisecond*20); err != nil {
			return err
		}
		if fired {
			t.Errorf("expected conditional timer not to fire after release")
		}
		return nil
	})
}
