package jsbridge

import (
	"sync"
	"sync/atomic"
)

// futureStore is the live set of a Context: every Future that is still
// Pending, keyed by identity. Futures remove themselves on settlement
// while CancelAll drains the whole set, so the storage must tolerate
// concurrent removal during traversal.
type futureStore struct {
	futures sync.Map // map[int64]*Future - thread-safe storage
	nextID  atomic.Int64
}

func newFutureStore() *futureStore {
	return &futureStore{}
}

// Add stores a pending future and returns its registration id.
func (fs *futureStore) Add(f *Future) int64 {
	id := fs.nextID.Add(1)
	fs.futures.Store(id, f)
	return id
}

// Remove deletes a future by id. It reports whether the id was present,
// so the one-shot completion hook can assert exactly-once removal.
func (fs *futureStore) Remove(id int64) bool {
	_, ok := fs.futures.LoadAndDelete(id)
	return ok
}

// Drain pops every live future into a snapshot slice. Used by CancelAll:
// cancelling mutates the set, so iteration happens on the snapshot.
func (fs *futureStore) Drain() []*Future {
	var out []*Future
	fs.futures.Range(func(key, value interface{}) bool {
		if _, ok := fs.futures.LoadAndDelete(key); ok {
			out = append(out, value.(*Future))
		}
		return true
	})
	return out
}

// Snapshot copies the live futures without removing them. Used by the
// drain loop in Wait to poll each pending future in turn.
func (fs *futureStore) Snapshot() []*Future {
	var out []*Future
	fs.futures.Range(func(_, value interface{}) bool {
		out = append(out, value.(*Future))
		return true
	})
	return out
}

// Count returns the number of live futures.
func (fs *futureStore) Count() int {
	count := 0
	fs.futures.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
