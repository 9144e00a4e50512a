// Package janitor runs the periodic hygiene sweep described in
// SPEC_FULL §4.9: pruning terminal tasks past their retention window
// and removing orphaned temporary video files left behind by a crash
// between "written to disk" and "extraction succeeded". This is
// additive to spec.md, which is silent on retention; it reuses the
// same deletion path the DELETE endpoint uses so behavior stays
// consistent.
package janitor

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/juniormartinxo/transcription/internal/model"
	"github.com/juniormartinxo/transcription/internal/store"
)

// Janitor owns a robfig/cron scheduler that periodically sweeps
// TaskStore and the video staging directory.
type Janitor struct {
	store     *store.TaskStore
	videosDir string
	retention time.Duration
	cron      *cron.Cron
}

// New builds a Janitor; call Start to begin running on interval.
func New(s *store.TaskStore, videosDir string, retention time.Duration) *Janitor {
	return &Janitor{
		store:     s,
		videosDir: videosDir,
		retention: retention,
		cron:      cron.New(),
	}
}

// Start schedules the sweep to run every interval, plus once
// immediately so a long-idle process doesn't wait a full period
// before its first cleanup.
func (j *Janitor) Start(interval time.Duration) error {
	spec := "@every " + interval.String()
	if _, err := j.cron.AddFunc(spec, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	go j.sweep()
	return nil
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	j.pruneTerminal()
	j.pruneOrphanedVideos()
}

func (j *Janitor) pruneTerminal() {
	cutoff := time.Now().Add(-j.retention)
	for _, rec := range j.store.List() {
		if !rec.Status.Terminal() || rec.CompletedAt == nil || rec.CompletedAt.After(cutoff) {
			continue
		}
		if rec.SourcePath != "" {
			_ = os.Remove(rec.SourcePath)
		}
		if rec.OutputPath != "" {
			_ = os.Remove(rec.OutputPath)
		}
		if err := j.store.Delete(rec.TaskID); err != nil {
			log.Printf("janitor: prune %s: %v", rec.TaskID, err)
		}
	}
}

// pruneOrphanedVideos removes staged video uploads with no
// corresponding non-terminal task, which can only happen if the
// process crashed mid-extraction (spec §4.9).
func (j *Janitor) pruneOrphanedVideos() {
	entries, err := os.ReadDir(j.videosDir)
	if err != nil {
		return // staging dir may not exist yet; nothing to prune
	}

	live := make(map[string]bool)
	for _, rec := range j.store.List() {
		if !rec.Status.Terminal() {
			live[baseIDPrefix(rec)] = true
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		prefix := entry.Name()
		if idx := firstUnderscoreGroup(prefix); idx > 0 {
			prefix = prefix[:idx]
		}
		if live[prefix] {
			continue
		}
		path := filepath.Join(j.videosDir, entry.Name())
		if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) > 10*time.Minute {
			_ = os.Remove(path)
		}
	}
}

func baseIDPrefix(rec *model.TaskRecord) string {
	if rec.BatchID != "" {
		return rec.BatchID
	}
	return rec.TaskID
}

// firstUnderscoreGroup returns the index of the underscore that ends
// the third group of a "{YYYYMMDD}_{HHMMSS}_{hex}_..." filename (or
// len(name) if no such underscore follows), i.e. the length of the
// base id prefix, or -1 if the name has fewer than two underscores.
func firstUnderscoreGroup(name string) int {
	seen := 0
	for i, r := range name {
		if r == '_' {
			seen++
			if seen == 2 {
				end := i + 1
				for end < len(name) && name[end] != '_' {
					end++
				}
				return end
			}
		}
	}
	return -1
}
