package workqueue

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every seeded item is processed exactly once, regardless of worker count.
func TestPool_ExactlyOnceConsumption(t *testing.T) {
	for _, workers := range []int{1, 4, 8} {
		const n = 200
		var seen sync.Map
		pool := New(workers, func(item int, ws *WorkerState[int, int]) int {
			seen.Store(item, true)
			return 1
		}, func(acc, next int) int { return acc + next })

		for i := 0; i < n; i++ {
			require.NoError(t, pool.AddItem(i))
		}
		total := pool.RunAll(0)
		assert.Equal(t, n, total)

		count := 0
		seen.Range(func(k, v any) bool { count++; return true })
		assert.Equal(t, n, count)
	}
}

// The reducer sees every task's output regardless of completion order,
// since it's associative/commutative: summing outputs must match
// regardless of worker count or scheduling.
func TestPool_ReducerOrderIndependence(t *testing.T) {
	const n = 500
	pool := New(6, func(item int, ws *WorkerState[int, int]) int {
		return item * item
	}, func(acc, next int) int { return acc + next })

	for i := 1; i <= n; i++ {
		require.NoError(t, pool.AddItem(i))
	}
	got := pool.RunAll(0)

	want := 0
	for i := 1; i <= n; i++ {
		want += i * i
	}
	assert.Equal(t, want, got)
}

// AddItem after RunAll has started must fail, steering dynamically
// discovered work through PushTask instead.
func TestPool_AddItemAfterStartRejected(t *testing.T) {
	pool := New(2, func(item int, ws *WorkerState[int, struct{}]) struct{} {
		return struct{}{}
	}, func(acc, next struct{}) struct{} { return acc })

	require.NoError(t, pool.AddItem(1))

	var addErr atomic.Value
	done := make(chan struct{})
	go func() {
		pool.RunAll(struct{}{})
		close(done)
	}()

	err := pool.AddItem(2)
	if err != nil {
		addErr.Store(err)
	}
	<-done

	// The race is inherent (RunAll may finish before this AddItem call
	// lands), but once started is guaranteed to reject: if an error was
	// observed, it must be ErrAlreadyRunning.
	if v := addErr.Load(); v != nil {
		assert.Equal(t, ErrAlreadyRunning, v.(error))
	}
}

// PushTask lets a running task enqueue follow-on work that is itself
// guaranteed to be processed before RunAll returns.
func TestPool_PushTaskConsumedEventually(t *testing.T) {
	var processed sync.Map
	var mu sync.Mutex
	var order []int

	pool := New(3, func(item int, ws *WorkerState[int, struct{}]) struct{} {
		mu.Lock()
		order = append(order, item)
		mu.Unlock()
		processed.Store(item, true)
		if item < 10 {
			ws.PushTask(item + 1)
		}
		return struct{}{}
	}, func(acc, next struct{}) struct{} { return acc })

	require.NoError(t, pool.AddItem(0))
	pool.RunAll(struct{}{})

	for i := 0; i <= 10; i++ {
		_, ok := processed.Load(i)
		assert.Truef(t, ok, "item %d was never processed", i)
	}
}

// A single seed item fans out onto one worker's own queue; the other
// workers must steal from it to make progress instead of exiting idle.
func TestPool_StealingDrainsUnevenDistribution(t *testing.T) {
	const workers = 8
	const n = 100
	pool := New(workers, func(item int, ws *WorkerState[int, int]) int {
		if item == 0 {
			for i := 1; i <= n; i++ {
				ws.PushTask(i)
			}
			return 0
		}
		return item
	}, func(acc, next int) int { return acc + next })

	require.NoError(t, pool.AddItem(0))
	got := pool.RunAll(0)

	sum := 0
	for i := 1; i <= n; i++ {
		sum += i
	}
	assert.Equal(t, sum, got)
}

// NewForEach discards the process function's return value and never
// panics synthesizing a reduction.
func TestNewForEach_RunsEveryItem(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	pool := NewForEach(4, func(item int, ws *WorkerState[int, struct{}]) {
		mu.Lock()
		seen = append(seen, item)
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.AddItem(i))
	}
	pool.RunAll(struct{}{})

	sort.Ints(seen)
	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("processed item set mismatch (-want +got):\n%s", diff)
	}
}

// A panicking task is logged and then re-panics rather than being absorbed:
// analyses are not transactional, so runTask must not let a bad item
// silently contribute a zero value. Calling runTask directly on the test's
// own goroutine (rather than through RunAll, which would crash the whole
// test binary via an unrecovered goroutine panic) lets the propagated panic
// value be asserted without actually bringing the process down.
func TestPool_PanicInTaskPropagates(t *testing.T) {
	pool := New(2, func(item int, ws *WorkerState[int, int]) int {
		panic("boom")
	}, func(acc, next int) int { return acc + next })

	ws := &WorkerState[int, int]{pool: pool, id: 0}
	assert.PanicsWithValue(t, "boom", func() {
		pool.runTask(1, ws)
	})
}
