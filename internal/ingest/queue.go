package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarmatch/pipeline/internal/observability"
)

// task is one queued unit of work.
type task struct {
	kind string
	run  func(ctx context.Context)
}

// Queue runs tasks on a bounded worker pool in submission order. Intake is
// unbounded: a roster task fans out hundreds of fetch tasks in one burst and
// must never block on its own queue, or the pool deadlocks.
type Queue struct {
	workerCount int
	logger      *zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []task
	closed  bool

	wg sync.WaitGroup
}

// NewQueue creates a Queue; Start launches the workers.
func NewQueue(workerCount int, logger *zerolog.Logger) *Queue {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}

	q := &Queue{
		workerCount: workerCount,
		logger:      logger,
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// Start launches the worker pool. Tasks receive ctx, so cancelling it aborts
// in-flight network calls; the workers themselves keep draining until Close.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)

		go q.worker(ctx)
	}
}

// Enqueue appends a task, reporting false when the queue is already closed.
func (q *Queue) Enqueue(kind string, run func(ctx context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, task{kind: kind, run: run})
	observability.QueueDepth.Set(float64(len(q.pending)))
	q.cond.Signal()

	return true
}

// Close stops intake. Already-pending tasks still run; call Wait to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Wait blocks until all pending tasks have finished. Only meaningful after
// Close, otherwise workers keep waiting for new work.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		t, ok := q.next()
		if !ok {
			return
		}

		q.execute(ctx, t)
	}
}

// next blocks until a task is available, or returns false once the queue is
// closed and drained.
func (q *Queue) next() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.pending) == 0 {
		return task{}, false
	}

	t := q.pending[0]
	q.pending = q.pending[1:]
	observability.QueueDepth.Set(float64(len(q.pending)))

	return t, true
}

// execute runs one task. Panics stop here: a malformed page or a bug in one
// task drops that task alone, and deliberately skips any bookkeeping the
// task had not reached yet.
func (q *Queue) execute(ctx context.Context, t task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface(logKeyPanic, r).Str(logKeyTask, t.kind).Msg("Recovered from task panic")
		}

		observability.TaskDuration.WithLabelValues(t.kind).Observe(time.Since(start).Seconds())
	}()

	t.run(ctx)
}
