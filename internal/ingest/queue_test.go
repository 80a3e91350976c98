package ingest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newTestQueue(workers int) *Queue {
	logger := zerolog.Nop()

	return NewQueue(workers, &logger)
}

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := newTestQueue(1)

	var ran []int

	for i := 0; i < 10; i++ {
		i := i

		if ok := q.Enqueue(taskFetchPapers, func(context.Context) {
			ran = append(ran, i)
		}); !ok {
			t.Fatalf("enqueue %d rejected before close", i)
		}
	}

	q.Start(context.Background())
	q.Close()
	q.Wait()

	if len(ran) != 10 {
		t.Fatalf("tasks run: got %d, want 10", len(ran))
	}

	for i, got := range ran {
		if got != i {
			t.Errorf("position %d: got task %d, want %d", i, got, i)
		}
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	q := newTestQueue(2)

	release := make(chan struct{})
	started := make(chan string, 3)

	for _, name := range []string{"first", "second"} {
		name := name

		q.Enqueue(taskFetchPapers, func(context.Context) {
			started <- name
			<-release
		})
	}

	q.Enqueue(taskFetchPapers, func(context.Context) {
		started <- "third"
	})

	q.Start(context.Background())

	<-started
	<-started

	// Both workers are now parked on the release channel, so nothing can
	// pick up the third task yet.
	select {
	case name := <-started:
		t.Fatalf("task %q ran while every worker was busy", name)
	default:
	}

	close(release)
	q.Close()
	q.Wait()

	if got := <-started; got != "third" {
		t.Errorf("drained task: got %q, want %q", got, "third")
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := newTestQueue(1)

	if ok := q.Enqueue(taskFetchPapers, func(context.Context) {}); !ok {
		t.Fatal("enqueue before close rejected")
	}

	q.Close()

	if ok := q.Enqueue(taskFetchPapers, func(context.Context) {}); ok {
		t.Error("enqueue after close accepted")
	}

	q.Start(context.Background())
	q.Wait()
}

func TestQueueRecoversTaskPanic(t *testing.T) {
	q := newTestQueue(1)

	ran := false

	q.Enqueue(taskEmbed, func(context.Context) {
		panic("malformed page")
	})
	q.Enqueue(taskEmbed, func(context.Context) {
		ran = true
	})

	q.Start(context.Background())
	q.Close()
	q.Wait()

	if !ran {
		t.Error("task behind a panicking task never ran")
	}
}

func TestNewQueueDefaultsWorkerCount(t *testing.T) {
	q := newTestQueue(0)

	if q.workerCount != defaultWorkerCount {
		t.Errorf("worker count: got %d, want %d", q.workerCount, defaultWorkerCount)
	}
}
