// Package ingest implements the two upload entry points (audio,
// video) and their batch variants, generalized from
// original_source/src/api/routes/transcribe.py's transcribe_audio and
// extract_audio_from_video, and from
// ShrutiLad242-job-service/handler/job_handler.go's CreateJob
// store-then-enqueue shape.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/juniormartinxo/transcription/internal/media"
	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/worker"
)

var allowedAudioExt = map[string]bool{
	".wav": true, ".mp3": true, ".ogg": true, ".m4a": true, ".flac": true, ".aac": true,
}

// RequestOptions is the client-supplied, partially-populated option
// set; nil pointer fields mean "use the default".
type RequestOptions struct {
	Timestamps   *bool
	Diarization  *bool
	OutputFormat string
	Model        string
	ForceCPU     *bool
}

// UploadFile abstracts one multipart file part so the ingestor does
// not depend on the HTTP framework's request type.
type UploadFile struct {
	Filename string
	Body     io.Reader
	Options  RequestOptions
}

// BatchItemResult is one line of a batch response: either a task id
// or an error, never both.
type BatchItemResult struct {
	Filename string `json:"filename"`
	TaskID   string `json:"task_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VideoBatchItemResult mirrors BatchItemResult for the video batch
// endpoint, where success carries four sibling tasks.
type VideoBatchItemResult struct {
	Filename       string              `json:"filename"`
	Transcriptions []*model.TaskRecord `json:"transcriptions,omitempty"`
	BatchID        string              `json:"batch_id,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Ingestor accepts uploaded bytes, materializes them on disk, and
// hands resulting TaskRecords to the Scheduler.
type Ingestor struct {
	store     *store.TaskStore
	scheduler *worker.Scheduler
	extractor *media.Extractor
	validate  *validator.Validate

	audiosDir         string
	videosDir         string
	maxAudioBytes     int64
	maxVideoBytes     int64
	extractorTimeout  time.Duration
	uploadIdleTimeout time.Duration
	defaultModel      string
	forceCPU          bool
}

// New builds an Ingestor. videosDir is a staging area for temporary
// video uploads, sibling to audiosDir (original source used
// `Path(audios_dir).parent / "videos"`). uploadIdleTimeout bounds how
// long a single read of an upload body may stall (spec §5); zero
// disables the check.
func New(s *store.TaskStore, sched *worker.Scheduler, extractor *media.Extractor,
	audiosDir, videosDir string, maxAudioBytes, maxVideoBytes int64,
	extractorTimeout, uploadIdleTimeout time.Duration, defaultModel string, forceCPU bool) *Ingestor {
	return &Ingestor{
		store:             s,
		scheduler:         sched,
		extractor:         extractor,
		validate:          validator.New(),
		audiosDir:         audiosDir,
		videosDir:         videosDir,
		maxAudioBytes:     maxAudioBytes,
		maxVideoBytes:     maxVideoBytes,
		extractorTimeout:  extractorTimeout,
		uploadIdleTimeout: uploadIdleTimeout,
		defaultModel:      defaultModel,
		forceCPU:          forceCPU,
	}
}

func (in *Ingestor) buildOptions(req RequestOptions) (model.Options, error) {
	opts := model.Options{
		Timestamps:   true,
		Diarization:  true,
		OutputFormat: model.FormatTXT,
		Model:        in.defaultModel,
		ForceCPU:     in.forceCPU,
	}
	if req.Timestamps != nil {
		opts.Timestamps = *req.Timestamps
	}
	if req.Diarization != nil {
		opts.Diarization = *req.Diarization
	}
	if req.OutputFormat != "" {
		opts.OutputFormat = model.OutputFormat(req.OutputFormat)
	}
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.ForceCPU != nil {
		opts.ForceCPU = *req.ForceCPU
	}

	if err := in.validate.Struct(opts); err != nil {
		return model.Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return opts, nil
}

// streamToDisk copies r to destPath, aborting once maxBytes is
// exceeded so a request body is never buffered whole in memory and
// never allowed to blow past the configured cap (spec §4.6, §5).
func streamToDisk(r io.Reader, destPath string, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if err != nil {
		_ = os.Remove(destPath)
		return 0, err
	}
	if n > maxBytes {
		_ = os.Remove(destPath)
		return n, ErrTooLarge
	}
	if n == 0 {
		_ = os.Remove(destPath)
		return 0, ErrEmptyUpload
	}
	return n, nil
}

// IngestAudio validates and stores a single audio upload, creates its
// TaskRecord, and admits it with the Scheduler (spec §4.6 step 1-4).
func (in *Ingestor) IngestAudio(ctx context.Context, filename string, body io.Reader, reqOpts RequestOptions) (*model.TaskRecord, error) {
	return in.ingestAudio(ctx, filename, body, reqOpts, "")
}

func (in *Ingestor) ingestAudio(ctx context.Context, filename string, body io.Reader, reqOpts RequestOptions, batchID string) (*model.TaskRecord, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedAudioExt[ext] {
		return nil, ErrUnsupportedFormat
	}

	opts, err := in.buildOptions(reqOpts)
	if err != nil {
		return nil, err
	}

	id := newTaskID()
	destPath := filepath.Join(in.audiosDir, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)))
	if _, err := streamToDisk(withIdleTimeout(ctx, body, in.uploadIdleTimeout), destPath, in.maxAudioBytes); err != nil {
		return nil, err
	}
	go probeAudio(destPath)

	rec := &model.TaskRecord{
		TaskID:     id,
		Filename:   filename,
		SourcePath: destPath,
		Status:     model.StatusPending,
		Options:    opts,
		CreatedAt:  time.Now(),
		BatchID:    batchID,
	}
	if err := in.store.Create(rec); err != nil {
		_ = os.Remove(destPath)
		return nil, err
	}
	if err := in.scheduler.Enqueue(id); err != nil {
		_ = in.store.Delete(id)
		_ = os.Remove(destPath)
		return nil, err
	}
	return rec, nil
}

// IngestAudioBatch applies IngestAudio to every file, all sharing one
// batch id; a single file's failure does not stop the rest (spec §4.6
// Batch ingest).
func (in *Ingestor) IngestAudioBatch(ctx context.Context, files []UploadFile) (string, []BatchItemResult) {
	batchID := uuid.NewString()
	results := make([]BatchItemResult, 0, len(files))
	for _, f := range files {
		rec, err := in.ingestAudio(ctx, f.Filename, f.Body, f.Options, batchID)
		if err != nil {
			results = append(results, BatchItemResult{Filename: f.Filename, Error: err.Error()})
			continue
		}
		results = append(results, BatchItemResult{Filename: f.Filename, TaskID: rec.TaskID})
	}
	return batchID, results
}

var fanOutConfigs = []struct {
	variant                 model.Variant
	timestamps, diarization bool
}{
	{model.VariantLimpa, false, false},
	{model.VariantTimestamps, true, false},
	{model.VariantDiarization, false, true},
	{model.VariantCompleta, true, true},
}

// IngestVideo extracts audio from a single video upload and fans out
// into the four canonical sibling tasks, atomically, per spec §4.6
// and invariant §3.6. Exactly one extraction is performed per video
// ingest; all four siblings share its output (DESIGN.md Open Question
// decision 1).
func (in *Ingestor) IngestVideo(ctx context.Context, filename string, body io.Reader) ([]*model.TaskRecord, error) {
	if !media.IsSupportedVideo(filename) {
		return nil, ErrUnsupportedFormat
	}

	baseID := newTaskID()
	safeName := sanitizeFilename(filename)
	tmpVideoPath := filepath.Join(in.videosDir, fmt.Sprintf("%s_%s", baseID, safeName))

	if _, err := streamToDisk(withIdleTimeout(ctx, body, in.uploadIdleTimeout), tmpVideoPath, in.maxVideoBytes); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(safeName, filepath.Ext(safeName))
	audioPath := filepath.Join(in.audiosDir, fmt.Sprintf("%s_%s.wav", baseID, stem))

	extractCtx, cancel := context.WithTimeout(ctx, in.extractorTimeout)
	defer cancel()
	if err := in.extractor.Extract(extractCtx, tmpVideoPath, audioPath); err != nil {
		_ = os.Remove(tmpVideoPath)
		_ = os.Remove(audioPath)
		return nil, err
	}
	_ = os.Remove(tmpVideoPath) // extractor never deletes the source; that's on us (spec §4.2)

	now := time.Now()
	recs := make([]*model.TaskRecord, 0, len(fanOutConfigs))
	for _, c := range fanOutConfigs {
		recs = append(recs, &model.TaskRecord{
			TaskID:     fmt.Sprintf("%s_%s", baseID, c.variant),
			Filename:   filename,
			SourcePath: audioPath,
			Status:     model.StatusPending,
			Options: model.Options{
				Timestamps:   c.timestamps,
				Diarization:  c.diarization,
				OutputFormat: model.FormatTXT,
				Model:        in.defaultModel,
				ForceCPU:     in.forceCPU,
			},
			CreatedAt: now,
			Variant:   c.variant,
			BatchID:   baseID,
		})
	}

	if err := in.store.CreateMany(recs); err != nil {
		_ = os.Remove(audioPath)
		return nil, err
	}

	in.enqueueBestEffort(recs)
	return recs, nil
}

// enqueueBestEffort admits every rec with the Scheduler, one at a time.
// A sibling already admitted may be running or even complete by the
// time a later sibling's Enqueue fails (invariant §3.5 — one sibling's
// fate must not touch another's), so a failure here must never roll
// back the batch or touch a sibling that already made it onto the
// queue. A sibling that fails to enqueue simply stays pending in the
// store; it is not lost, since Scheduler.Recover() re-admits every
// pending record at the next startup.
func (in *Ingestor) enqueueBestEffort(recs []*model.TaskRecord) {
	for _, rec := range recs {
		if err := in.scheduler.Enqueue(rec.TaskID); err != nil {
			log.Printf("ingest: enqueue %s: %v (left pending for recovery)", rec.TaskID, err)
		}
	}
}

// IngestVideoBatch applies IngestVideo to every file. Each video keeps
// its own base id as its siblings' batch_id (invariant §3.6 is
// per-video); the string this method returns is purely a response-
// envelope grouping id for the overall multi-file request and is not
// stored on any TaskRecord (DESIGN.md Open Question decision 4, on
// the batch-video endpoint's ambiguous shared batch_id).
func (in *Ingestor) IngestVideoBatch(ctx context.Context, files []UploadFile) (string, []VideoBatchItemResult) {
	requestBatchID := uuid.NewString()
	results := make([]VideoBatchItemResult, 0, len(files))
	for _, f := range files {
		recs, err := in.IngestVideo(ctx, f.Filename, f.Body)
		if err != nil {
			results = append(results, VideoBatchItemResult{Filename: f.Filename, Error: err.Error()})
			continue
		}
		results = append(results, VideoBatchItemResult{
			Filename:       f.Filename,
			Transcriptions: recs,
			BatchID:        recs[0].BatchID,
		})
	}
	return requestBatchID, results
}
