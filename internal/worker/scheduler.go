package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
)

// ErrQueueFull is returned by Enqueue when the bounded admission
// queue has no room; callers surface this as HTTP 503 (spec §7).
var ErrQueueFull = errors.New("worker: admission queue is full")

// Scheduler bounds the number of JobRunners executing simultaneously,
// tracks per-task cancellation handles, and admits work FIFO.
// Generalized from ShrutiLad242-job-service/worker/worker_pool.go's
// fixed goroutine pool over an unbounded-acceptance buffered channel:
// here Enqueue fails fast once the buffer is full instead of blocking
// the caller, and execution runs through a sourcegraph/conc pool so a
// panicking JobRunner doesn't take the process down with it.
type Scheduler struct {
	store    *store.TaskStore
	runner   *JobRunner
	registry *cancelRegistry

	admit chan string
	slots chan struct{}
	pool  *pool.Pool

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// NewScheduler wires a Scheduler over store, dispatching admitted
// tasks to transcriber-backed JobRunners bounded to maxConcurrent at
// a time, with an admission queue of queueDepth slots. taskTimeout
// bounds how long a single JobRunner may run before it is treated as
// stuck (spec §5); zero leaves a task to run until it finishes or is
// explicitly canceled.
func NewScheduler(s *store.TaskStore, tr transcriber.Transcriber, transcriptionsDir string, taskTimeout time.Duration, maxConcurrent, queueDepth int) *Scheduler {
	reg := newCancelRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     s,
		runner:    newJobRunner(s, tr, transcriptionsDir, taskTimeout, reg),
		registry:  reg,
		admit:     make(chan string, queueDepth),
		slots:     make(chan struct{}, maxConcurrent),
		pool:      pool.New().WithMaxGoroutines(maxConcurrent),
		ctx:       ctx,
		cancelAll: cancel,
	}
}

// Start launches the dispatcher goroutine that drains the admission
// queue into the bounded worker pool.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.dispatch()
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		// Take a worker slot before taking an id off the queue, so an
		// admitted id stays in the bounded queue (and counts against its
		// depth) until a worker is free to run it.
		s.slots <- struct{}{}
		id, ok := <-s.admit
		if !ok {
			return
		}
		s.pool.Go(func() {
			defer func() { <-s.slots }()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("worker: recovered panic running task %s: %v", id, r)
					s.runner.finishFailed(id, "", errors.New("worker: task panicked"))
				}
			}()
			s.runner.Run(s.ctx, id)
		})
	}
}

// Enqueue admits id for execution. It never blocks: if the queue is
// already at capacity it returns ErrQueueFull immediately.
func (s *Scheduler) Enqueue(id string) error {
	select {
	case s.admit <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel requests that task id stop. A pending task is transitioned
// to failed("canceled") synchronously; a processing task's
// cancellation handle is fired and the terminal transition happens
// when the JobRunner unwinds. Canceling a terminal task is a no-op.
// Cancel is idempotent.
func (s *Scheduler) Cancel(id string) (*model.TaskRecord, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	if rec.Status == model.StatusPending {
		updated, err := s.store.Update(id, func(t *model.TaskRecord) error {
			if t.Status != model.StatusPending {
				return errNotPending
			}
			t.Status = model.StatusFailed
			now := time.Now()
			t.CompletedAt = &now
			t.Error = "canceled"
			return nil
		})
		if err == nil {
			return updated, nil
		}
		// Raced with the JobRunner's own pending->processing transition;
		// fall through to the processing path below.
	}

	s.registry.fire(id)
	return s.store.Get(id)
}

// Recover implements spec §5's at-startup recovery: processing
// records imply an unclean shutdown and become failed("interrupted");
// pending records are re-admitted in created_at order.
func (s *Scheduler) Recover() {
	var pending []*model.TaskRecord
	for _, rec := range s.store.List() {
		switch rec.Status {
		case model.StatusProcessing:
			if _, err := s.store.Update(rec.TaskID, func(t *model.TaskRecord) error {
				t.Status = model.StatusFailed
				now := time.Now()
				t.CompletedAt = &now
				t.Error = "interrupted"
				return nil
			}); err != nil {
				log.Printf("worker: recovery mark-interrupted %s: %v", rec.TaskID, err)
			}
		case model.StatusPending:
			pending = append(pending, rec)
		}
	}

	for _, rec := range pending {
		if err := s.Enqueue(rec.TaskID); err != nil {
			log.Printf("worker: recovery re-enqueue %s: %v", rec.TaskID, err)
		}
	}
}

// Shutdown stops admitting new work, waits for the dispatcher to
// drain the queue and outstanding JobRunners to finish (or ctx to
// expire, whichever comes first), then fires every remaining
// cancellation handle to hasten exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	close(s.admit)

	dispatchDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(dispatchDone)
	}()
	select {
	case <-dispatchDone:
	case <-ctx.Done():
		s.cancelAll()
		return ctx.Err()
	}

	poolDone := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(poolDone)
	}()
	select {
	case <-poolDone:
		s.cancelAll()
		return nil
	case <-ctx.Done():
		s.cancelAll()
		return ctx.Err()
	}
}
