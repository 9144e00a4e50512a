package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// newTaskID mints an id of shape {YYYYMMDD}_{HHMMSS}_{8 hex chars},
// per spec §3. The shape is observable by clients; changing it is a
// wire-format break.
func newTaskID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), hex.EncodeToString(b[:]))
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename strips directory components and anything but a
// conservative filename character set, so a client-supplied name can
// never escape the target directory or inject control characters into
// an on-disk path.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = unsafePathChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	return base
}
