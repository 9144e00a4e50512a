package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juniormartinxo/transcription/internal/media"
	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
	"github.com/juniormartinxo/transcription/internal/worker"
)

func newTestIngestor(t *testing.T) (*Ingestor, *store.TaskStore) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	sched := worker.NewScheduler(s, transcriber.NewCachingStub(), filepath.Join(dir, "transcriptions"), 0, 2, 16)
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	extractor := media.New(5 * time.Second)
	ing := New(s, sched, extractor,
		filepath.Join(dir, "audios"), filepath.Join(dir, "videos"),
		1024, 1024, 5*time.Second, 5*time.Second, "turbo", false)
	return ing, s
}

func TestIngestAudioHappyPath(t *testing.T) {
	ing, s := newTestIngestor(t)
	rec, err := ing.IngestAudio(context.Background(), "clip.wav", strings.NewReader("some audio bytes"), RequestOptions{})
	if err != nil {
		t.Fatalf("IngestAudio: %v", err)
	}
	if rec.TaskID == "" {
		t.Fatal("expected non-empty task id")
	}
	if _, err := os.Stat(rec.SourcePath); err != nil {
		t.Fatalf("expected source file on disk: %v", err)
	}
	if _, err := s.Get(rec.TaskID); err != nil {
		t.Fatalf("expected task in store: %v", err)
	}
}

func TestIngestAudioRejectsUnsupportedFormat(t *testing.T) {
	ing, _ := newTestIngestor(t)
	_, err := ing.IngestAudio(context.Background(), "clip.exe", strings.NewReader("x"), RequestOptions{})
	if err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestIngestAudioRejectsOversizeUpload(t *testing.T) {
	ing, _ := newTestIngestor(t)
	huge := strings.Repeat("a", 2048)
	_, err := ing.IngestAudio(context.Background(), "clip.wav", strings.NewReader(huge), RequestOptions{})
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestIngestAudioRejectsEmptyUpload(t *testing.T) {
	ing, _ := newTestIngestor(t)
	_, err := ing.IngestAudio(context.Background(), "clip.wav", strings.NewReader(""), RequestOptions{})
	if err != ErrEmptyUpload {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
}

func TestIngestAudioBatchContinuesPastFailures(t *testing.T) {
	ing, _ := newTestIngestor(t)
	files := []UploadFile{
		{Filename: "a.wav", Body: strings.NewReader("real audio")},
		{Filename: "b.exe", Body: strings.NewReader("not audio")},
		{Filename: "c.mp3", Body: strings.NewReader("also real")},
	}
	batchID, results := ing.IngestAudioBatch(context.Background(), files)
	if batchID == "" {
		t.Fatal("expected non-empty batch id")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].Error == "" {
		t.Fatal("expected the .exe entry to carry an error")
	}
	if results[0].TaskID == "" || results[2].TaskID == "" {
		t.Fatal("expected the two valid uploads to produce task ids")
	}
}

func TestIngestVideoRejectsUnsupportedFormat(t *testing.T) {
	ing, _ := newTestIngestor(t)
	_, err := ing.IngestVideo(context.Background(), "clip.txt", strings.NewReader("x"))
	if err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestEnqueueBestEffortLeavesRecordsPendingOnFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	// A scheduler with no dispatcher running and a zero-depth admission
	// queue: every Enqueue call fails immediately, simulating what
	// happens when a later sibling in a video fan-out can't be admitted.
	sched := worker.NewScheduler(s, transcriber.NewCachingStub(), filepath.Join(dir, "transcriptions"), 0, 1, 0)
	ing := &Ingestor{store: s, scheduler: sched}

	recs := []*model.TaskRecord{
		{TaskID: "base_limpa", Filename: "clip.mp4", SourcePath: "audio.wav", Status: model.StatusPending, CreatedAt: time.Now(), Options: model.Options{OutputFormat: model.FormatTXT, Model: "turbo"}},
		{TaskID: "base_timestamps", Filename: "clip.mp4", SourcePath: "audio.wav", Status: model.StatusPending, CreatedAt: time.Now(), Options: model.Options{OutputFormat: model.FormatTXT, Model: "turbo"}},
	}
	if err := s.CreateMany(recs); err != nil {
		t.Fatalf("CreateMany: %v", err)
	}

	ing.enqueueBestEffort(recs)

	for _, rec := range recs {
		got, err := s.Get(rec.TaskID)
		if err != nil {
			t.Fatalf("Get(%s): expected record to survive a failed enqueue, got error: %v", rec.TaskID, err)
		}
		if got.Status != model.StatusPending {
			t.Fatalf("Get(%s): expected status to remain pending, got %v", rec.TaskID, got.Status)
		}
	}
}

func TestIngestVideoExtractionFailureLeavesNoStagedFiles(t *testing.T) {
	ing, s := newTestIngestor(t)
	_, err := ing.IngestVideo(context.Background(), "clip.mp4", strings.NewReader("not a real video"))
	if err == nil {
		t.Fatal("expected extraction to fail against a fake ffmpeg binary or missing tool")
	}
	if len(s.List()) != 0 {
		t.Fatalf("expected no tasks to survive a failed extraction, got %d", len(s.List()))
	}
	if entries, _ := os.ReadDir(ing.videosDir); len(entries) != 0 {
		t.Fatalf("unexpected leftover video staging files: %v", entries)
	}
	if entries, _ := os.ReadDir(ing.audiosDir); len(entries) != 0 {
		t.Fatalf("unexpected leftover extracted audio files: %v", entries)
	}
}
