package ingest

import (
	"log"
	"os"

	"github.com/dhowden/tag"
)

// probeAudio best-effort reads container tag metadata from a freshly
// ingested audio file purely for diagnostic logging. It never blocks
// task creation and never surfaces as an ingest error: spec §7 fixes
// the exact set of checks that can reject an upload (extension, size),
// and tag metadata isn't one of them. Grounded on
// jodfie-ThinLineRadio's dhowden/tag dependency.
func probeAudio(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		log.Printf("ingest: no tag metadata for %s (%v)", path, err)
		return
	}
	log.Printf("ingest: probed %s: format=%s title=%q", path, m.Format(), m.Title())
}
