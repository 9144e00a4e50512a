// Package httpapi maps the external API (spec §6) onto
// Ingestor/Scheduler/TaskStore operations. Generalized from
// ShrutiLad242-job-service/handler/job_handler.go, whose CreateJob/
// GetJob/ListJobs/CancelJob handlers cover exactly this shape for a
// single job kind; here the surface grows to the full ten-endpoint
// table (multi-variant audio/video/batch ingest, download, delete).
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/juniormartinxo/transcription/internal/httpapi/response"
	"github.com/juniormartinxo/transcription/internal/ingest"
	"github.com/juniormartinxo/transcription/internal/media"
	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/worker"
)

// Handlers holds everything the HTTP surface needs to fulfil a
// request: the durable store for reads, the ingestor for writes, and
// the scheduler for cancellation.
type Handlers struct {
	Store     *store.TaskStore
	Scheduler *worker.Scheduler
	Ingestor  *ingest.Ingestor
}

func New(s *store.TaskStore, sched *worker.Scheduler, ing *ingest.Ingestor) *Handlers {
	return &Handlers{Store: s, Scheduler: sched, Ingestor: ing}
}

type optionsWire struct {
	Timestamps   *bool  `json:"timestamps"`
	Diarization  *bool  `json:"diarization"`
	OutputFormat string `json:"output_format"`
	Model        string `json:"model"`
	ForceCPU     *bool  `json:"force_cpu"`
}

// parseOptions reads the optional "options" multipart form field,
// a JSON object, per spec §6's "optional `options` (JSON fields)".
func parseOptions(c *gin.Context) (ingest.RequestOptions, error) {
	raw := c.PostForm("options")
	if raw == "" {
		return ingest.RequestOptions{}, nil
	}
	var w optionsWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return ingest.RequestOptions{}, err
	}
	return ingest.RequestOptions{
		Timestamps:   w.Timestamps,
		Diarization:  w.Diarization,
		OutputFormat: w.OutputFormat,
		Model:        w.Model,
		ForceCPU:     w.ForceCPU,
	}, nil
}

func openUpload(fh *multipart.FileHeader) (multipart.File, error) {
	return fh.Open()
}

// mapIngestError translates a sentinel ingest/media/store error into
// the matching HTTP status per spec §7.
func mapIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		response.UnsupportedMedia(c, err.Error())
	case errors.Is(err, ingest.ErrTooLarge):
		response.TooLarge(c, err.Error())
	case errors.Is(err, ingest.ErrEmptyUpload), errors.Is(err, ingest.ErrInvalidOptions):
		response.Validation(c, err.Error())
	case errors.Is(err, ingest.ErrUploadIdle):
		response.UploadTimeout(c, err.Error())
	case errors.Is(err, worker.ErrQueueFull):
		response.QueueFull(c, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		response.Internal(c, "task id collision, please retry")
	default:
		var mediaErr *media.Error
		if errors.As(err, &mediaErr) {
			switch mediaErr.Kind {
			case media.KindUnsupportedFormat:
				response.UnsupportedMedia(c, mediaErr.Msg)
			case media.KindDecoderTimeout:
				response.DecoderTimeout(c, mediaErr.Msg)
			default:
				response.Internal(c, mediaErr.Msg)
			}
			return
		}
		response.Internal(c, err.Error())
	}
}

// CreateTranscription handles POST /transcribe/.
func (h *Handlers) CreateTranscription(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Validation(c, "file is required")
		return
	}
	opts, err := parseOptions(c)
	if err != nil {
		response.Validation(c, "invalid options: "+err.Error())
		return
	}
	f, err := openUpload(fh)
	if err != nil {
		response.Internal(c, "could not read upload")
		return
	}
	defer f.Close()

	rec, err := h.Ingestor.IngestAudio(c.Request.Context(), fh.Filename, f, opts)
	if err != nil {
		mapIngestError(c, err)
		return
	}
	response.Created(c, rec)
}

// CreateBatchAudio handles POST /transcribe/batch-audio.
func (h *Handlers) CreateBatchAudio(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Validation(c, "multipart form required")
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		response.Validation(c, "at least one file is required")
		return
	}
	opts, err := parseOptions(c)
	if err != nil {
		response.Validation(c, "invalid options: "+err.Error())
		return
	}

	files := make([]ingest.UploadFile, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, fh := range headers {
		f, err := openUpload(fh)
		if err != nil {
			response.Internal(c, "could not read upload "+fh.Filename)
			return
		}
		closers = append(closers, f)
		files = append(files, ingest.UploadFile{Filename: fh.Filename, Body: f, Options: opts})
	}

	batchID, results := h.Ingestor.IngestAudioBatch(c.Request.Context(), files)
	response.Created(c, gin.H{"batch_id": batchID, "items": results})
}

// ExtractAudio handles POST /transcribe/extract-audio.
func (h *Handlers) ExtractAudio(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Validation(c, "file is required")
		return
	}
	f, err := openUpload(fh)
	if err != nil {
		response.Internal(c, "could not read upload")
		return
	}
	defer f.Close()

	recs, err := h.Ingestor.IngestVideo(c.Request.Context(), fh.Filename, f)
	if err != nil {
		mapIngestError(c, err)
		return
	}

	types := make([]string, 0, len(recs))
	for _, r := range recs {
		types = append(types, string(r.Variant))
	}
	response.Created(c, gin.H{
		"batch_id":       recs[0].BatchID,
		"audio_path":     recs[0].SourcePath,
		"transcriptions": recs,
		"summary":        gin.H{"total": len(recs), "types": types},
	})
}

// CreateBatchVideo handles POST /transcribe/batch-video.
func (h *Handlers) CreateBatchVideo(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Validation(c, "multipart form required")
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		response.Validation(c, "at least one file is required")
		return
	}

	files := make([]ingest.UploadFile, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, fh := range headers {
		f, err := openUpload(fh)
		if err != nil {
			response.Internal(c, "could not read upload "+fh.Filename)
			return
		}
		closers = append(closers, f)
		files = append(files, ingest.UploadFile{Filename: fh.Filename, Body: f})
	}

	batchID, results := h.Ingestor.IngestVideoBatch(c.Request.Context(), files)
	response.Created(c, gin.H{"batch_id": batchID, "items": results})
}

// ListTasks handles GET /transcribe/.
func (h *Handlers) ListTasks(c *gin.Context) {
	tasks := h.Store.List()
	response.OK(c, gin.H{"tasks": tasks, "total": len(tasks)})
}

// GetTask handles GET /transcribe/{task_id}.
func (h *Handlers) GetTask(c *gin.Context) {
	rec, err := h.Store.Get(c.Param("task_id"))
	if err != nil {
		response.NotFound(c, "task not found")
		return
	}
	response.OK(c, rec)
}

// Download handles GET /transcribe/{task_id}/download.
func (h *Handlers) Download(c *gin.Context) {
	rec, err := h.Store.Get(c.Param("task_id"))
	if err != nil {
		response.NotFound(c, "task not found")
		return
	}
	if rec.Status != model.StatusCompleted {
		response.Conflict(c, "transcription is not complete")
		return
	}
	if rec.OutputPath == "" {
		response.NotFound(c, "output file not found")
		return
	}
	if _, err := os.Stat(rec.OutputPath); err != nil {
		response.NotFound(c, "output file not found")
		return
	}
	c.FileAttachment(rec.OutputPath, filepath.Base(rec.OutputPath))
}

// Cancel handles POST /transcribe/{task_id}/cancel.
func (h *Handlers) Cancel(c *gin.Context) {
	rec, err := h.Scheduler.Cancel(c.Param("task_id"))
	if err != nil {
		response.NotFound(c, "task not found")
		return
	}
	response.Accepted(c, rec)
}

// Delete handles DELETE /transcribe/{task_id}.
func (h *Handlers) Delete(c *gin.Context) {
	id := c.Param("task_id")
	withFiles, _ := strconv.ParseBool(c.Query("with_files"))

	if withFiles {
		if rec, err := h.Store.Get(id); err == nil {
			if rec.SourcePath != "" {
				_ = os.Remove(rec.SourcePath)
			}
			if rec.OutputPath != "" {
				_ = os.Remove(rec.OutputPath)
			}
		}
	}
	if err := h.Store.Delete(id); err != nil {
		response.Storage(c, err.Error())
		return
	}
	response.NoContent(c)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
