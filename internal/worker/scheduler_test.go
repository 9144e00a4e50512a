package worker

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
)

// blockingTranscriber lets tests hold a task in "processing" until
// released, so cancellation and concurrency-bound behavior can be
// observed deterministically.
type blockingTranscriber struct {
	release chan struct{}
	started chan string
	inFlight int32
	peak     int32
}

func newBlockingTranscriber() *blockingTranscriber {
	return &blockingTranscriber{release: make(chan struct{}), started: make(chan string, 64)}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, audioPath string, opts transcriber.Options, outputPath string) error {
	n := atomic.AddInt32(&b.inFlight, 1)
	for {
		old := atomic.LoadInt32(&b.peak)
		if n <= old || atomic.CompareAndSwapInt32(&b.peak, old, n) {
			break
		}
	}
	b.started <- outputPath
	defer atomic.AddInt32(&b.inFlight, -1)

	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestSchedulerWith(t *testing.T, tr transcriber.Transcriber, maxConcurrent int) (*Scheduler, *store.TaskStore) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	sched := NewScheduler(s, tr, t.TempDir(), 0, maxConcurrent, maxConcurrent*16)
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})
	return sched, s
}

func createPending(t *testing.T, s *store.TaskStore, id string) {
	t.Helper()
	if err := s.Create(&model.TaskRecord{
		TaskID:     id,
		Filename:   id + ".wav",
		SourcePath: id + ".wav",
		Status:     model.StatusPending,
		CreatedAt:  time.Now(),
		Options:    model.Options{OutputFormat: model.FormatTXT, Model: "turbo"},
	}); err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	tr := newBlockingTranscriber()
	sched, s := newTestSchedulerWith(t, tr, 2)

	for i := 0; i < 5; i++ {
		id := "task-" + string(rune('a'+i))
		createPending(t, s, id)
		if err := sched.Enqueue(id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Let all admitted work reach the transcriber.
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&tr.inFlight) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 2 in-flight tasks")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if atomic.LoadInt32(&tr.inFlight) > 2 {
		t.Fatalf("expected at most 2 in-flight, got %d", tr.inFlight)
	}

	close(tr.release)
}

func TestSchedulerQueueFull(t *testing.T) {
	tr := newBlockingTranscriber()
	sched, s := newTestSchedulerWith(t, tr, 1)
	defer close(tr.release)

	// Fill queueDepth (16) plus the one in-flight slot.
	for i := 0; i < 17; i++ {
		id := "flood-" + string(rune('a'+i))
		createPending(t, s, id)
		if err := sched.Enqueue(id); err != nil {
			t.Fatalf("Enqueue #%d: %v", i, err)
		}
	}

	createPending(t, s, "overflow")
	if err := sched.Enqueue("overflow"); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSchedulerCancelPendingIsSynchronous(t *testing.T) {
	tr := newBlockingTranscriber()
	defer close(tr.release)
	sched, s := newTestSchedulerWith(t, tr, 1)

	// Occupy the single slot so the next task stays pending in queue.
	createPending(t, s, "occupier")
	_ = sched.Enqueue("occupier")
	<-tr.started

	createPending(t, s, "waiting")
	_ = sched.Enqueue("waiting")

	rec, err := sched.Cancel("waiting")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.Status != model.StatusFailed || rec.Error != "canceled" {
		t.Fatalf("expected failed/canceled, got %+v", rec)
	}

	got, _ := s.Get("waiting")
	if got.Status != model.StatusFailed {
		t.Fatalf("cancellation of pending task did not persist")
	}
}

func TestSchedulerCancelWhileProcessingStopsTheTask(t *testing.T) {
	tr := newBlockingTranscriber()
	sched, s := newTestSchedulerWith(t, tr, 1)

	createPending(t, s, "running")
	_ = sched.Enqueue("running")

	// Block until the JobRunner has committed pending->processing and
	// started the transcriber. The cancellation handle is registered
	// before that transition is visible in the store (see JobRunner.Run),
	// so by the time "processing" is observable here, Cancel is
	// guaranteed to find a live handle to fire rather than silently
	// no-op against a not-yet-registered task.
	<-tr.started

	rec, err := s.Get("running")
	if err != nil || rec.Status != model.StatusProcessing {
		t.Fatalf("expected task to be processing before cancel, got %+v (%v)", rec, err)
	}

	if _, err := sched.Cancel("running"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got, err := s.Get("running")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != model.StatusFailed || got.Error != "canceled" {
				t.Fatalf("expected failed/canceled, got %+v", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("cancel-while-processing never reached a terminal state")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSchedulerCancelIdempotent(t *testing.T) {
	tr := newBlockingTranscriber()
	defer close(tr.release)
	sched, s := newTestSchedulerWith(t, tr, 1)

	createPending(t, s, "solo")
	_ = sched.Enqueue("solo")

	first, err := sched.Cancel("solo")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	second, err := sched.Cancel("solo")
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if first.Status != second.Status || second.Status != model.StatusFailed {
		t.Fatalf("cancel is not idempotent: %+v vs %+v", first, second)
	}
}

func TestSchedulerTaskTimeoutFailsStuckTask(t *testing.T) {
	tr := newBlockingTranscriber()
	defer close(tr.release)

	s, err := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	sched := NewScheduler(s, tr, t.TempDir(), 20*time.Millisecond, 1, 16)
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	createPending(t, s, "stuck")
	if err := sched.Enqueue("stuck"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-tr.started

	deadline := time.After(2 * time.Second)
	for {
		got, err := s.Get("stuck")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != model.StatusFailed {
				t.Fatalf("expected failed on timeout, got %+v", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task_timeout never forced a terminal state")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSchedulerRecoverMarksProcessingInterrupted(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	now := time.Now()
	if err := s.Create(&model.TaskRecord{
		TaskID: "orphaned", Status: model.StatusProcessing, CreatedAt: now, StartedAt: &now,
		Options: model.Options{OutputFormat: model.FormatTXT, Model: "turbo"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tr := newBlockingTranscriber()
	sched := NewScheduler(s, tr, t.TempDir(), 0, 1, 16)
	sched.Start()
	defer func() {
		close(tr.release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	}()

	sched.Recover()

	got, err := s.Get("orphaned")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusFailed || got.Error != "interrupted" {
		t.Fatalf("expected failed/interrupted, got %+v", got)
	}
}

func TestSchedulerRecoverReenqueuesPending(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	createPending(t, s, "resumed")

	tr := newBlockingTranscriber()
	sched := NewScheduler(s, tr, t.TempDir(), 0, 1, 16)
	sched.Start()
	defer func() {
		close(tr.release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	}()

	sched.Recover()

	select {
	case <-tr.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("recovered pending task never started")
	}
}
