package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SweepStale removes session directories under root/qcut-export older than
// maxAge that a prior crashed process never cleaned up (spec §5's stale-
// session sweep). Grounded on the teacher's CleanupService.
// cleanupOrphanedDirectories age-by-ModTime pattern.
func SweepStale(root string, maxAge time.Duration, log hclog.Logger) (int, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("session.sweep")

	base := filepath.Join(root, "qcut-export")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(base, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Warn("failed to remove stale session directory", "path", path, "error", err)
			continue
		}
		log.Info("removed stale session directory", "path", path, "age", time.Since(info.ModTime()))
		removed++
	}
	return removed, nil
}
