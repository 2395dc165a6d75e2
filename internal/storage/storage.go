// Package storage 代理页面快照的本地缓存
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"locatorcheck/internal/logger"
)

// Snapshot 经代理获取的页面快照
type Snapshot struct {
	ID          uint   `gorm:"primaryKey"`
	URL         string `gorm:"uniqueIndex;not null"`
	StatusCode  int    `gorm:"not null"`
	ContentType string
	Body        []byte
	FetchedAt   time.Time `gorm:"index;not null"`
}

// Open 打开 sqlite 数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return nil, err
	}
	return db, nil
}

// SnapshotStore 页面快照仓储
type SnapshotStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSnapshotStore 创建快照仓储
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db, now: time.Now}
}

// Get 获取未过期的快照，ttl<=0 时视为不缓存
func (s *SnapshotStore) Get(ctx context.Context, url string, ttl time.Duration) (*Snapshot, bool, error) {
	if ttl <= 0 {
		return nil, false, nil
	}
	var snap Snapshot
	err := s.db.WithContext(ctx).
		Where("url = ? AND fetched_at > ?", url, s.now().Add(-ttl)).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

// Put 写入或覆盖快照
func (s *SnapshotStore) Put(ctx context.Context, snap *Snapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = s.now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"status_code", "content_type", "body", "fetched_at"}),
	}).Create(snap).Error
}

// Purge 删除早于 ttl 的快照，返回删除条数
func (s *SnapshotStore) Purge(ctx context.Context, ttl time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Where("fetched_at <= ?", s.now().Add(-ttl)).Delete(&Snapshot{})
	return res.RowsAffected, res.Error
}
