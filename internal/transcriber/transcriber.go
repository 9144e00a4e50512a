// Package transcriber defines the Transcriber capability the
// orchestrator depends on but does not implement (spec §1, §4.3): the
// speech-recognition and diarization engine is an external
// collaborator. This package holds only the interface contract and a
// deterministic reference implementation used for local development
// and tests, grounded on the call shape of
// original_source/src/services/audio_transcriber.py.
package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Options mirrors the immutable per-task option set the orchestrator
// passes through opaquely.
type Options struct {
	Timestamps  bool
	Diarization bool
	Model       string
	ForceCPU    bool
}

// ErrCanceled is returned when the cancellation signal fires before
// the transcriber finishes.
var ErrCanceled = context.Canceled

// Transcriber is the capability interface the JobRunner invokes. An
// implementation writes a text file at outputPath and returns; ctx
// carries the cancellation signal (spec §4.3).
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options, outputPath string) error
}

// CachingStub is a byte-stable, deterministic reference implementation
// satisfying the Transcriber contract. It does not perform real
// speech recognition; it exists so the orchestrator is independently
// testable without the actual ML stack, per spec §4.3's caching note:
// implementations may maintain a model cache keyed by (model, device),
// and the orchestrator must treat that cache as opaque, non-thread-safe
// state serialized through the Scheduler's slots.
type CachingStub struct {
	mu    sync.Mutex
	cache map[string]time.Time // model+device -> last-loaded time, opaque to callers
}

// NewCachingStub returns a ready-to-use reference Transcriber.
func NewCachingStub() *CachingStub {
	return &CachingStub{cache: make(map[string]time.Time)}
}

// Transcribe writes a small, deterministic text artifact describing
// the requested options, simulating "model hot-load on first use,
// cache hit thereafter" without any actual inference work.
func (c *CachingStub) Transcribe(ctx context.Context, audioPath string, opts Options, outputPath string) error {
	device := "cpu"
	if !opts.ForceCPU {
		device = "gpu"
	}
	key := opts.Model + "@" + device

	c.mu.Lock()
	if _, hot := c.cache[key]; !hot {
		c.cache[key] = time.Now()
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("transcriber: mkdir: %w", err)
	}

	body := fmt.Sprintf(
		"transcript for %s\nmodel=%s device=%s timestamps=%v diarization=%v\n",
		filepath.Base(audioPath), opts.Model, device, opts.Timestamps, opts.Diarization,
	)

	tmp := outputPath + ".partial"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("transcriber: write: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = os.Remove(tmp)
		return ctx.Err()
	default:
	}

	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("transcriber: rename: %w", err)
	}
	return nil
}
