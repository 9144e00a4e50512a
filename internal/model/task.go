// Package model defines the TaskRecord entity shared by every component
// of the orchestrator: the store persists it, the scheduler dispatches
// it, the job runner mutates it, and the HTTP surface serializes it.
package model

import "time"

// Status is the task's position in the pending -> processing ->
// {completed, failed} state machine. completed and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Variant identifies which of the four canonical option-sets a
// video-derived sibling task represents.
type Variant string

const (
	VariantLimpa       Variant = "limpa"
	VariantTimestamps  Variant = "timestamps"
	VariantDiarization Variant = "diarization"
	VariantCompleta    Variant = "completa"
)

// OutputFormat is the requested shape of the transcription artifact.
type OutputFormat string

const (
	FormatTXT  OutputFormat = "txt"
	FormatJSON OutputFormat = "json"
	FormatSRT  OutputFormat = "srt"
)

// Options is the immutable option set a task is created with. The
// zero value is not valid on its own; callers should check it against
// the validator tags below before use.
type Options struct {
	Timestamps   bool         `json:"timestamps"`
	Diarization  bool         `json:"diarization"`
	OutputFormat OutputFormat `json:"output_format" validate:"required,oneof=txt json srt"`
	Model        string       `json:"model" validate:"required"`
	ForceCPU     bool         `json:"force_cpu"`
}

// TaskRecord is the central entity: one per transcription unit.
type TaskRecord struct {
	TaskID      string     `json:"task_id"`
	Filename    string     `json:"filename"`
	SourcePath  string     `json:"source_path"`
	Status      Status     `json:"status"`
	Options     Options    `json:"options"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	Error       string     `json:"error,omitempty"`
	Variant     Variant    `json:"variant,omitempty"`
	BatchID     string     `json:"batch_id,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside
// the store's lock (pointer fields are copied, not shared).
func (t *TaskRecord) Clone() *TaskRecord {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// CanTransitionTo reports whether moving from t's current status to
// next is legal under the monotone state machine (spec §3 invariant 1).
func (t *TaskRecord) CanTransitionTo(next Status) bool {
	switch t.Status {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false // completed/failed are terminal
	}
}
