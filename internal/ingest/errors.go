package ingest

import "errors"

// Sentinel validation/admission errors the HTTP layer maps to status
// codes per spec §7.
var (
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")
	ErrTooLarge          = errors.New("ingest: file exceeds size limit")
	ErrEmptyUpload       = errors.New("ingest: empty or missing upload")
	ErrInvalidOptions    = errors.New("ingest: invalid options")
	ErrUploadIdle        = errors.New("ingest: upload stalled past the idle-read timeout")
)
