package jobs

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweeper drops expired entries and reports how many it removed.
type Sweeper interface {
	DeleteExpired() int
}

// JanitorJob bounds the in-memory caches between accesses and removes upload
// files left behind by jobs that never finished (for example after a crash).
type JanitorJob struct {
	sweepers   map[string]Sweeper
	uploadDir  string
	filePrefix string
	maxAge     time.Duration
	now        func() time.Time
}

// NewJanitorJob creates a janitor. Upload files in uploadDir whose name starts
// with filePrefix are removed once older than maxAge.
func NewJanitorJob(sweepers map[string]Sweeper, uploadDir, filePrefix string, maxAge time.Duration) *JanitorJob {
	return &JanitorJob{
		sweepers:   sweepers,
		uploadDir:  uploadDir,
		filePrefix: filePrefix,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Run performs one sweep.
func (j *JanitorJob) Run(ctx context.Context) error {
	for name, sweeper := range j.sweepers {
		if removed := sweeper.DeleteExpired(); removed > 0 {
			log.Printf("🧹 [JANITOR] Evicted %d expired %s entries", removed, name)
		}
	}

	if j.uploadDir == "" || j.filePrefix == "" {
		return nil
	}
	removed, err := j.removeOrphanedUploads(ctx)
	if removed > 0 {
		log.Printf("🧹 [JANITOR] Removed %d orphaned upload files", removed)
	}
	return err
}

func (j *JanitorJob) removeOrphanedUploads(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.uploadDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), j.filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("⚠️  [JANITOR] Failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
