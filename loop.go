package jsbridge

import (
	"container/heap"
	"sync"
	"time"
)

// Job is a unit of work queued on the event loop, typically a JavaScript
// timer callback. The returned error is an uncaught exception from the
// callback and is reported by the tick that ran it.
type Job func() error

type job struct {
	id       int64
	fn       Job
	due      time.Time
	interval time.Duration // > 0 means the job reschedules itself
	index    int
}

type jobQueue []*job

func (q jobQueue) Len() int            { return len(q) }
func (q jobQueue) Less(i, j int) bool  { return q[i].due.Before(q[j].due) }
func (q jobQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *jobQueue) Push(x interface{}) { j := x.(*job); j.index = len(*q); *q = append(*q, j) }
func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*q = old[:n-1]
	return j
}

// Loop is the macro-task queue of a runtime: the timer layer the engine
// itself does not have. It only makes progress when run is called, one
// tick at a time.
type Loop struct {
	mu   sync.Mutex
	jobs jobQueue
	byID map[int64]*job
	next int64
}

// NewLoop returns an empty loop.
func NewLoop() *Loop {
	return &Loop{byID: make(map[int64]*job)}
}

// ScheduleJob adds a job to the loop. A positive interval reschedules the
// job after every run until it is cleared. The returned id cancels it.
func (l *Loop) ScheduleJob(fn Job, delay, interval time.Duration) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	j := &job{
		id:       l.next,
		fn:       fn,
		due:      time.Now().Add(delay),
		interval: interval,
	}
	l.byID[j.id] = j
	heap.Push(&l.jobs, j)
	return j.id
}

// ClearJob removes a scheduled job. It reports whether the id was live.
func (l *Loop) ClearJob(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	j, ok := l.byID[id]
	if !ok {
		return false
	}
	delete(l.byID, id)
	if j.index >= 0 {
		heap.Remove(&l.jobs, j.index)
	}
	return true
}

// IsLoopPending returns true if any job is still scheduled.
func (l *Loop) IsLoopPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs) > 0
}

// NextWake returns the due time of the earliest scheduled job.
func (l *Loop) NextWake() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.jobs) == 0 {
		return time.Time{}, false
	}
	return l.jobs[0].due, true
}

// Run executes the jobs that are due at the moment of the call. The due
// set is snapshotted first: a job scheduled by a running job waits for
// the next tick even at zero delay, so one tick is one unit of progress.
// The first uncaught callback error is returned after the whole snapshot
// has run.
func (l *Loop) Run() (int, error) {
	now := time.Now()

	l.mu.Lock()
	var due []*job
	for len(l.jobs) > 0 && !l.jobs[0].due.After(now) {
		j := heap.Pop(&l.jobs).(*job)
		if j.interval <= 0 {
			// one-shot jobs leave the id table now; interval jobs stay
			// so that ClearJob works from inside their own callback
			delete(l.byID, j.id)
		}
		due = append(due, j)
	}
	l.mu.Unlock()

	var firstErr error
	for _, j := range due {
		if err := j.fn(); err != nil && firstErr == nil {
			firstErr = err
		}
		if j.interval > 0 {
			l.mu.Lock()
			if _, ok := l.byID[j.id]; ok {
				j.due = time.Now().Add(j.interval)
				heap.Push(&l.jobs, j)
			}
			l.mu.Unlock()
		}
	}
	return len(due), firstErr
}

// Stop drops every scheduled job.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = nil
	l.byID = make(map[int64]*job)
}
