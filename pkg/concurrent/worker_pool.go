package concurrent

import (
	"sync"
)

type JobFunc[T any, G any] func(job T) G

// WorkerFactory builds the job function of one worker. It is called lazily on
// the worker's own goroutine before its first job, so whatever it allocates
// (a connection pool, a scratch buffer) is owned by that worker alone.
type WorkerFactory[T any, G any] func(workerID int) JobFunc[T, G]

type WorkerPool[T any, G any] struct {
	numWorkers int
	jobQueue   chan T
	results    chan G
	wg         sync.WaitGroup
}

func NewWorkerPool[T any, G any](numWorkers, jobQueueSize int) *WorkerPool[T, G] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[T, G]{
		numWorkers: numWorkers,
		jobQueue:   make(chan T, jobQueueSize),
		results:    make(chan G, jobQueueSize),
	}
}

func (wp *WorkerPool[T, G]) worker(id int, newJobFunc WorkerFactory[T, G]) {
	defer wp.wg.Done()
	var jobFunc JobFunc[T, G]
	for job := range wp.jobQueue {
		if jobFunc == nil {
			jobFunc = newJobFunc(id)
		}
		res := jobFunc(job)
		wp.results <- res
	}
}

func (wp *WorkerPool[T, G]) Start(newJobFunc WorkerFactory[T, G]) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i, newJobFunc)
	}
}

// Wait blocks until every worker has returned and then closes the results
// channel. Call it after Close, concurrently with draining CollectResults.
func (wp *WorkerPool[T, G]) Wait() {
	wp.wg.Wait()
	close(wp.results)
}

func (wp *WorkerPool[T, G]) AddJob(job T) {
	wp.jobQueue <- job
}

func (wp *WorkerPool[T, G]) CollectResults() <-chan G {
	return wp.results
}

// Close signals that no more jobs will be added.
func (wp *WorkerPool[T, G]) Close() {
	close(wp.jobQueue)
}

func (wp *WorkerPool[T, G]) NumWorkers() int {
	return wp.numWorkers
}
