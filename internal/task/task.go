package task

import (
	"os"
	"path/filepath"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartMirrorPruner periodically drops old records from the local call-log
// mirror. The backend stays the source of truth; the mirror only needs the
// recent history the console actually shows.
func StartMirrorPruner(db *gorm.DB, keep time.Duration) {
	if db == nil {
		return
	}
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		pruneMirror(db, keep)
	}
}

func pruneMirror(db *gorm.DB, keep time.Duration) {
	cutoff := time.Now().Add(-keep)
	res := db.Where("started_at < ?", cutoff).Delete(&models.CallLogRecord{})
	if res.Error != nil {
		logger.Warn("call log mirror prune failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		logger.Info("pruned call log mirror",
			zap.Int64("removed", res.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
}

// StartRecordingSweeper removes proxied recording payloads that have sat in
// local storage longer than maxAge. Resolved URLs expire from the cache on
// the same order of time, so a swept payload is simply re-fetched on the
// next open.
func StartRecordingSweeper(store *stores.LocalStore, maxAge time.Duration) {
	if store == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		sweepRecordings(store, maxAge)
	}
}

func sweepRecordings(store *stores.LocalStore, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(store.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		key, err := filepath.Rel(store.Root, path)
		if err != nil {
			return nil
		}
		if err := store.Delete(key); err == nil {
			removed++
		}
		return nil
	})
	if err != nil {
		logger.Warn("recording sweep failed", zap.String("root", store.Root), zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("swept stale recordings", zap.Int("removed", removed), zap.String("root", store.Root))
	}
}
