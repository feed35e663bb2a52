package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalErrors "apna-payments/internal/errors"
	"apna-payments/internal/metrics"
)

type Task struct {
	Name string
	// Key identifies the record the task writes, for logs only.
	Key string
	Run func(ctx context.Context) error
}

type Outcome struct {
	Task     Task
	Err      error
	Duration time.Duration
}

// Dispatcher runs tasks in the background, off the caller's request path.
// Every task yields an Outcome; Supervise (or a reader of Outcomes) must be
// draining them or finished tasks wait.
type Dispatcher struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	slots    chan struct{}
	outcomes chan Outcome

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, m *metrics.Metrics, maxInFlight int) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Dispatcher{
		log:      log.With("component", "dispatcher"),
		metrics:  m,
		slots:    make(chan struct{}, maxInFlight),
		outcomes: make(chan Outcome, maxInFlight),
	}
}

// Dispatch schedules task and returns without waiting for it. Tasks wait
// for a free slot on their own goroutine, so the caller never blocks.
func (d *Dispatcher) Dispatch(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return internalErrors.ErrDispatcherClosed
	}

	d.wg.Add(1)
	d.metrics.TaskScheduled()
	go d.run(task)
	return nil
}

func (d *Dispatcher) Outcomes() <-chan Outcome {
	return d.outcomes
}

// Supervise logs every outcome until the dispatcher is closed.
func (d *Dispatcher) Supervise() {
	for o := range d.outcomes {
		d.report(o)
	}
}

// Wait blocks until every scheduled task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting tasks, waits for the scheduled ones and closes the
// outcome channel.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.outcomes)
}

func (d *Dispatcher) run(task Task) {
	defer d.wg.Done()

	d.slots <- struct{}{}
	start := time.Now()
	err := execute(task)
	<-d.slots

	elapsed := time.Since(start)
	d.metrics.TaskFinished(task.Name, elapsed.Seconds(), err)
	d.outcomes <- Outcome{Task: task, Err: err, Duration: elapsed}
}

// execute runs the task with a context detached from any request. There is
// no cancellation; a task runs until it finishes or fails.
func execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(context.Background())
}

func (d *Dispatcher) report(o Outcome) {
	attrs := []any{"task", o.Task.Name, "key", o.Task.Key, "duration", o.Duration}

	switch {
	case o.Err == nil:
		d.log.Debug("background task finished", attrs...)
	case errors.Is(o.Err, internalErrors.ErrNotFound):
		d.log.Warn("background task found no matching record", append(attrs, "error", o.Err)...)
	default:
		d.log.Error("background task failed", append(attrs, "error", o.Err)...)
	}
}
