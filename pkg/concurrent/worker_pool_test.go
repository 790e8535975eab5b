package concurrent

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolProcessesEveryJob(t *testing.T) {
	const numJobs = 500
	wp := NewWorkerPool[int, int](6, 16)

	wp.Start(func(workerID int) JobFunc[int, int] {
		return func(job int) int {
			return job * 2
		}
	})

	go func() {
		for i := 0; i < numJobs; i++ {
			wp.AddJob(i)
		}
		wp.Close()
	}()
	go wp.Wait()

	got := make([]int, 0, numJobs)
	for r := range wp.CollectResults() {
		got = append(got, r)
	}

	require.Len(t, got, numJobs)
	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i*2, v)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const workers = 4
	wp := NewWorkerPool[int, struct{}](workers, 0)

	var inflight, peak atomic.Int32
	wp.Start(func(workerID int) JobFunc[int, struct{}] {
		return func(job int) struct{} {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inflight.Add(-1)
			return struct{}{}
		}
	})

	go func() {
		for i := 0; i < 100; i++ {
			wp.AddJob(i)
		}
		wp.Close()
	}()
	go wp.Wait()

	count := 0
	for range wp.CollectResults() {
		count++
	}
	assert.Equal(t, 100, count)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestWorkerFactoryRunsOncePerWorker(t *testing.T) {
	const workers = 3
	wp := NewWorkerPool[int, int](workers, 8)

	var mu sync.Mutex
	calls := map[int]int{}
	wp.Start(func(workerID int) JobFunc[int, int] {
		mu.Lock()
		calls[workerID]++
		mu.Unlock()
		return func(job int) int { return workerID }
	})

	go func() {
		for i := 0; i < 200; i++ {
			wp.AddJob(i)
		}
		wp.Close()
	}()
	go wp.Wait()

	for range wp.CollectResults() {
	}

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(calls), workers)
	for id, n := range calls {
		assert.Equal(t, 1, n, "worker %d built its job func %d times", id, n)
	}
}

func TestNewWorkerPoolMinimumOneWorker(t *testing.T) {
	wp := NewWorkerPool[int, int](0, 1)
	assert.Equal(t, 1, wp.NumWorkers())
}
