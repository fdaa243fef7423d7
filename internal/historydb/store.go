// Package historydb is the Export History Store: a local sqlite table
// recording each export's terminal outcome for diagnostics, grounded on
// playbackmodule/core/session_store.go's SessionStore-over-gorm pattern and
// repository/history_repository.go's CRUD shape.
package historydb

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
)

// Record is one export attempt's terminal state.
type Record struct {
	ID         string `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	Strategy   string
	Outcome    string // "success", "failed", "cancelled", "timed_out"
	DurationMS int64
	StderrTail string
	Error      string
	CreatedAt  time.Time
}

// Store persists Records to a sqlite file.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

// Open creates/migrates the sqlite database at path. An empty path opens an
// in-memory database, useful for tests and for callers who don't want
// export history persisted across process restarts.
func Open(path string, log hclog.Logger) (*Store, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, qcuterrors.Wrap(qcuterrors.KindIO, "failed to open export history database", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, qcuterrors.Wrap(qcuterrors.KindIO, "failed to migrate export history schema", err)
	}
	return &Store{db: db, log: log.Named("historydb")}, nil
}

// Record inserts a terminal outcome row. History-write failures never fail
// an export; callers should log and continue, not propagate the error up.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return qcuterrors.Wrap(qcuterrors.KindIO, "failed to record export history", err)
	}
	return nil
}

// RecentForSession returns history rows for a session, most recent first.
func (s *Store) RecentForSession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, qcuterrors.Wrap(qcuterrors.KindIO, "failed to query export history", err)
	}
	return recs, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
