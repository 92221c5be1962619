package modem

import (
	"sync"
	"time"
)

// worker runs deferred bring-up steps one at a time on a single goroutine.
// Steps re-submit themselves (possibly after a delay) instead of looping,
// which keeps each step bounded and lets control operations interleave.
//
// The queue is unbounded so Submit never blocks: timer callbacks and
// control operations must not wedge behind a step stalled in a long
// command exchange.
type worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

func newWorker() *worker {
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *worker) run() {
	w.mu.Lock()
	for {
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		fn := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		fn()

		w.mu.Lock()
	}
}

// Submit schedules fn for execution with no delay. Submissions after Close
// are dropped.
func (w *worker) Submit(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.queue = append(w.queue, fn)
	w.cond.Signal()
}

// SubmitAfter schedules fn after the given delay.
func (w *worker) SubmitAfter(d time.Duration, fn func()) {
	if d <= 0 {
		w.Submit(fn)
		return
	}
	time.AfterFunc(d, func() { w.Submit(fn) })
}

func (w *worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.cond.Signal()
}
