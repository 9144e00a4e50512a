// Package worker implements JobRunner and Scheduler: the pieces that
// take a pending TaskRecord to a terminal state under a bounded
// concurrency ceiling. Generalized from
// ShrutiLad242-job-service/worker/worker_pool.go, which ran a single
// fixed job kind (string reversal) with no persistence and no
// admission control; here the queue is bounded and rejects when full,
// state transitions go through the durable store, and cancellation is
// tracked per task rather than solely via the job's own context.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
)

var errNotPending = errors.New("worker: task is not pending")

// JobRunner executes one task end-to-end per spec §4.4.
type JobRunner struct {
	store             *store.TaskStore
	transcriber       transcriber.Transcriber
	transcriptionsDir string
	taskTimeout       time.Duration
	registry          *cancelRegistry
}

func newJobRunner(s *store.TaskStore, t transcriber.Transcriber, transcriptionsDir string, taskTimeout time.Duration, reg *cancelRegistry) *JobRunner {
	return &JobRunner{store: s, transcriber: t, transcriptionsDir: transcriptionsDir, taskTimeout: taskTimeout, registry: reg}
}

// Run drives task id from pending to a terminal state. ctx is the
// scheduler-provided parent; Run derives its own cancelable child and
// registers it in the cancellation registry *before* the pending ->
// processing transition is committed, so a Cancel call can never
// observe "processing" in the store without a handle already present
// to fire (otherwise a cancel landing in that window would silently
// no-op instead of stopping the task). When taskTimeout is positive the
// child also carries a deadline (spec §5's optional per-task ceiling),
// so a transcriber that never returns cannot pin a worker slot forever.
func (r *JobRunner) Run(parent context.Context, id string) {
	rec, err := r.store.Get(id)
	if err != nil {
		log.Printf("worker: run %s: %v", id, err)
		return
	}
	if rec.Status != model.StatusPending {
		return // already canceled or otherwise moved on
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if r.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, r.taskTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	r.registry.register(id, cancel)

	if _, err := r.store.Update(id, func(t *model.TaskRecord) error {
		if t.Status != model.StatusPending {
			return errNotPending
		}
		t.Status = model.StatusProcessing
		now := time.Now()
		t.StartedAt = &now
		return nil
	}); err != nil {
		cancel()
		r.registry.unregister(id)
		return // lost the race to a cancellation
	}
	defer func() {
		cancel()
		r.registry.unregister(id)
	}()

	rec, _ = r.store.Get(id) // re-read post-transition options (immutable, but pick up StartedAt)
	outputPath := filepath.Join(
		r.transcriptionsDir,
		fmt.Sprintf("%s_transcricao_%s.txt", id, time.Now().Format("20060102_150405")),
	)

	opts := transcriber.Options{
		Timestamps:  rec.Options.Timestamps,
		Diarization: rec.Options.Diarization,
		Model:       rec.Options.Model,
		ForceCPU:    rec.Options.ForceCPU,
	}

	err = r.transcriber.Transcribe(ctx, rec.SourcePath, opts, outputPath)
	if err != nil {
		r.finishFailed(id, outputPath, err)
		return
	}
	r.finishCompleted(id, outputPath)
}

func (r *JobRunner) finishCompleted(id, outputPath string) {
	if _, err := r.store.Update(id, func(t *model.TaskRecord) error {
		t.Status = model.StatusCompleted
		now := time.Now()
		t.CompletedAt = &now
		t.OutputPath = outputPath
		return nil
	}); err != nil {
		log.Printf("worker: persist completed %s: %v", id, err)
	}
}

func (r *JobRunner) finishFailed(id, outputPath string, cause error) {
	// Best-effort cleanup of any partial artifact the transcriber left behind.
	if _, statErr := os.Stat(outputPath); statErr == nil {
		_ = os.Remove(outputPath)
	}

	errMsg := "canceled"
	if !errors.Is(cause, context.Canceled) {
		errMsg = redact(cause)
	}

	if _, err := r.store.Update(id, func(t *model.TaskRecord) error {
		t.Status = model.StatusFailed
		now := time.Now()
		t.CompletedAt = &now
		t.Error = errMsg
		return nil
	}); err != nil {
		log.Printf("worker: persist failed %s: %v", id, err)
	}
}

var pathLikeToken = regexp.MustCompile(`(?:/[^\s:]+)+`)

// redact strips filesystem paths out of a Transcriber error message
// per spec §4.4 ("redacted of filesystem internals"), keeping only
// the base name of any path-shaped token so clients see what failed
// without leaking the server's directory layout.
func redact(err error) string {
	msg := err.Error()
	return pathLikeToken.ReplaceAllStringFunc(msg, func(tok string) string {
		return filepath.Base(strings.TrimRight(tok, ":"))
	})
}
