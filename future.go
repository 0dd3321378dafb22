package jsbridge

import (
	"context"
	"sync"
)

// FutureState is the lifecycle state of a Future.
type FutureState int32

const (
	FuturePending FutureState = iota
	FutureSettled
	FutureCancelled
)

// String returns the state name.
func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "pending"
	case FutureSettled:
		return "settled"
	case FutureCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Future adapts one engine promise to a poll-based protocol. It is created
// by CallAsync or CallModuleAsync, registered in its Context's live set
// while pending, and removed exactly once when it leaves the pending
// state, whichever path takes it there.
//
// Polling is the only way a Future settles: each poll ticks the shared
// event loop once and then checks the wrapped promise. The tick operates
// on the whole engine, so polling one future also progresses every other
// pending promise on the same Context.
type Future struct {
	ctx     *Context
	promise *Promise
	id      int64

	mu     sync.Mutex
	state  FutureState
	result interface{}
	err    error
	done   chan struct{}
}

func newFuture(ctx *Context, promise *Promise) *Future {
	f := &Future{
		ctx:     ctx,
		promise: promise,
		done:    make(chan struct{}),
	}
	f.id = ctx.live.Add(f)
	return f
}

// State returns the current lifecycle state.
func (f *Future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done is closed when the future leaves the pending state.
func (f *Future) Done() <-chan struct{} { return f.done }

// Promise returns the foreign promise handle the future wraps. Stepping
// it by hand requires holding the context's engine serialization; most
// callers only need the cached Result and Exception after settlement.
func (f *Future) Promise() *Promise { return f.promise }

// Result returns the terminal value. Before settlement it fails with
// ErrNotSettled; after rejection or cancellation it returns the terminal
// error. Repeated calls return the identical cached outcome.
func (f *Future) Result() (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FuturePending {
		return nil, ErrNotSettled
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// Err returns the terminal error, nil if the future settled with a value,
// and ErrNotSettled while pending.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FuturePending {
		return ErrNotSettled
	}
	return f.err
}

// SetResult always fails with ErrDirectSettlement. It exists for parity
// with writable future types: the only legitimate path to settlement is
// Poll observing the engine's own resolution.
func (f *Future) SetResult(interface{}) error {
	return ErrDirectSettlement
}

// SetException always fails with ErrDirectSettlement, like SetResult.
func (f *Future) SetException(error) error {
	return ErrDirectSettlement
}

// Poll drives the future one step. If it is already terminal the cached
// outcome stands and no engine work happens. Otherwise the context's
// event loop is ticked once and the wrapped promise is checked; done
// reports whether the future is now terminal. The error reports polling
// infrastructure failures (a closed context), never the computation's
// own failure, which is delivered through Result and Err on settlement.
//
// A false result means "still pending": the caller is expected to poll
// again promptly, typically on the next iteration of its own loop. There
// is no external readiness signal.
func (f *Future) Poll() (bool, error) {
	f.mu.Lock()
	if f.state != FuturePending {
		f.mu.Unlock()
		return true, nil
	}
	f.mu.Unlock()

	return f.ctx.pollFuture(f)
}

// Await polls until the future settles, yielding to the host scheduler
// between polls. ctx cancellation or deadline expiry cancels the future
// and returns the context's error.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	for {
		done, err := f.Poll()
		if err != nil {
			return nil, err
		}
		if done {
			return f.Result()
		}
		if err := f.ctx.yield(ctx); err != nil {
			f.Cancel()
			return nil, err
		}
	}
}

// Cancel marks a pending future cancelled, removes it from the live set
// and stops the bridge from ever ticking the engine on its behalf again.
// It does not stop the underlying computation inside the engine. Returns
// true if this call performed the transition; cancelling a settled or
// already-cancelled future is a no-op.
func (f *Future) Cancel() bool {
	return f.complete(FutureCancelled, nil, ErrCancelled)
}

// complete performs the one-shot transition out of the pending state and
// deregisters the future. Exactly one caller wins; later calls of either
// kind are no-ops.
func (f *Future) complete(state FutureState, result interface{}, err error) bool {
	f.mu.Lock()
	if f.state != FuturePending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.result = result
	f.err = err
	close(f.done)
	f.mu.Unlock()

	f.ctx.live.Remove(f.id)
	return true
}
