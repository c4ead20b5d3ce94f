// Package workqueue implements a generic map/reduce worker pool over
// per-worker FIFO queues, with randomized-permutation work stealing when a
// worker's own queue runs dry. It underlies the concurrent per-method
// scheduling in pkg/clinit (component G), but has no dependency on that
// package and is usable on its own.
package workqueue

import (
	"errors"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by AddItem once RunAll has started. Items
// discovered after the run starts must go through PushTask from inside a
// running task instead.
var ErrAlreadyRunning = errors.New("workqueue: AddItem called after RunAll started")

// ProcessFunc maps a single item to an output value. It may call
// ws.PushTask to enqueue more work discovered while processing item.
type ProcessFunc[I any, O any] func(item I, ws *WorkerState[I, O]) O

// ReduceFunc combines two output values. It should be associative and
// commutative: each worker applies it in the order that worker happens to
// pick up items, and RunAll folds the per-worker partial results in
// worker-index order once every worker has exited, not in item order.
type ReduceFunc[O any] func(acc, next O) O

type workerQueue[I any] struct {
	mu    sync.Mutex
	items []I
}

func (q *workerQueue[I]) push(v I) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

func (q *workerQueue[I]) popFront() (I, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero I
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// WorkerState is handed to ProcessFunc so it can enqueue follow-on work
// onto its own worker's queue. PushTask is safe to call concurrently from
// any worker (it locks the target queue internally), unlike AddItem.
type WorkerState[I any, O any] struct {
	pool *Pool[I, O]
	id   int
}

// PushTask enqueues item on this worker's own queue and makes it visible
// to work stealing immediately.
func (ws *WorkerState[I, O]) PushTask(item I) {
	ws.pool.workers[ws.id].push(item)
	ws.pool.pending.Add(1)
	tasksPushed.Inc()
}

// WorkerID returns the index of the worker goroutine running this task,
// primarily useful for logging.
func (ws *WorkerState[I, O]) WorkerID() int { return ws.id }

// Pool is a fixed-size map/reduce worker pool. Zero value is not usable;
// construct with New.
type Pool[I any, O any] struct {
	workers []*workerQueue[I]
	process ProcessFunc[I, O]
	reduce  ReduceFunc[O]

	pending atomic.Int64
	nextAdd atomic.Int64
	started atomic.Bool

	log *logrus.Entry
}

// New builds a pool with numWorkers worker goroutines, a processing
// function, and a reducer used to combine each task's output into the
// running accumulator. numWorkers is clamped to at least 1.
func New[I any, O any](numWorkers int, process ProcessFunc[I, O], reduce ReduceFunc[O]) *Pool[I, O] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	workers := make([]*workerQueue[I], numWorkers)
	for i := range workers {
		workers[i] = &workerQueue[I]{}
	}
	return &Pool[I, O]{
		workers: workers,
		process: process,
		reduce:  reduce,
		log:     logrus.WithField("component", "workqueue"),
	}
}

// NewForEach builds a pool for tasks with no meaningful output, discarding
// whatever the process function returns.
func NewForEach[I any](numWorkers int, process func(item I, ws *WorkerState[I, struct{}])) *Pool[I, struct{}] {
	wrapped := func(item I, ws *WorkerState[I, struct{}]) struct{} {
		process(item, ws)
		return struct{}{}
	}
	noop := func(acc, next struct{}) struct{} { return acc }
	return New(numWorkers, wrapped, noop)
}

// NewMapReduce is an alias for New kept for call sites that want the
// map/reduce framing to read explicitly at the construction site.
func NewMapReduce[I any, O any](numWorkers int, process ProcessFunc[I, O], reduce ReduceFunc[O]) *Pool[I, O] {
	return New(numWorkers, process, reduce)
}

// AddItem enqueues an item before RunAll is called. AddItem is NOT safe
// for concurrent use with itself or with RunAll; all items to be seeded
// ahead of time must be added from a single goroutine before calling
// RunAll. Use WorkerState.PushTask from inside a running task instead.
func (p *Pool[I, O]) AddItem(item I) error {
	if p.started.Load() {
		return ErrAlreadyRunning
	}
	idx := int(p.nextAdd.Add(1)-1) % len(p.workers)
	p.workers[idx].push(item)
	p.pending.Add(1)
	return nil
}

// RunAll starts numWorkers goroutines (the count given to New), drains
// every queued and subsequently pushed item exactly once, and returns the
// reduction of every task's output. initial seeds each worker's
// accumulator and also the final fold across workers, so it enters the
// result once per worker plus once more.
func (p *Pool[I, O]) RunAll(initial O) O {
	p.started.Store(true)

	results := make([]O, len(p.workers))
	var wg sync.WaitGroup
	for i := range p.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id] = p.runWorker(id, initial)
		}(i)
	}
	wg.Wait()

	final := initial
	for _, r := range results {
		final = p.reduce(final, r)
	}
	return final
}

func (p *Pool[I, O]) runWorker(id int, initial O) O {
	ws := &WorkerState[I, O]{pool: p, id: id}
	acc := initial
	backoff := time.Microsecond
	const maxBackoff = time.Millisecond

	for {
		item, ok := p.nextFor(id)
		if !ok {
			if p.pending.Load() == 0 {
				return acc
			}
			time.Sleep(backoff)
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Microsecond

		out := p.runTask(item, ws)
		acc = p.reduce(acc, out)
		p.pending.Add(-1)
		tasksProcessed.Inc()
	}
}

// runTask recovers a worker's panic only long enough to log it with a
// stack trace; analyses are not transactional, so a bad item does not get
// to silently contribute a zero value to the reduction. The recover exists
// purely to attach worker/stack context to the log line before the panic
// is re-raised, which brings down runWorker's goroutine and, with it, the
// whole process.
func (p *Pool[I, O]) runTask(item I, ws *WorkerState[I, O]) O {
	defer func() {
		if r := recover(); r != nil {
			workerPanics.Inc()
			p.log.WithField("worker", ws.id).WithField("panic", r).WithField("stack", string(debug.Stack())).Error("clinit: worker task panicked, crashing")
			panic(r)
		}
	}()
	return p.process(item, ws)
}

// nextFor returns the next item to process for worker id: its own queue
// first, then a randomized permutation of every other worker's queue.
// Checking the owner's own queue first amounts to forcing it to position
// 0 of that permutation, per spec.
func (p *Pool[I, O]) nextFor(id int) (I, bool) {
	if v, ok := p.workers[id].popFront(); ok {
		return v, true
	}
	for _, j := range rand.Perm(len(p.workers)) {
		if j == id {
			continue
		}
		if v, ok := p.workers[j].popFront(); ok {
			stealsTotal.Inc()
			return v, true
		}
	}
	var zero I
	return zero, false
}
