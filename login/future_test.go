package login

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFutureResolveBeforeWait(t *testing.T) {
	f := NewFuture()
	f.Resolve(true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !f.Wait(ctx) {
		t.Error("expected Wait to report success")
	}
}

func TestFutureWaitBlocksUntilResolve(t *testing.T) {
	f := NewFuture()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !f.Wait(ctx) {
		t.Error("expected Wait to report success after resolution")
	}
}

func TestFutureWaitTimesOutWithCurrentState(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if f.Wait(ctx) {
		t.Error("expected Wait to report false for an unresolved future on timeout")
	}
}

func TestFutureResolveIsIdempotent(t *testing.T) {
	f := NewFuture()
	f.Resolve(true)
	f.Resolve(false) // must not panic (closing a closed channel) or flip the outcome

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !f.Wait(ctx) {
		t.Error("second Resolve call should not override the first outcome")
	}
}

func TestFutureListenersDrainedOnce(t *testing.T) {
	f := NewFuture()
	var mu sync.Mutex
	calls := 0
	for i := 0; i < 3; i++ {
		f.OnLogin(func(success bool) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	}
	f.Resolve(true)
	f.Resolve(true)

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("expected each of 3 listeners to fire exactly once, got %d calls", calls)
	}
}

func TestFutureOnLoginAfterResolveFiresImmediately(t *testing.T) {
	f := NewFuture()
	f.Resolve(true)

	fired := false
	f.OnLogin(func(success bool) {
		fired = success
	})
	if !fired {
		t.Error("expected a post-resolution listener to fire immediately with the outcome")
	}
}
