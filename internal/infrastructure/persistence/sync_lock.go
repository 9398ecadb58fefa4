package persistence

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormSyncLock implements catalog.SyncLock with a lease row per key.
// An expired lease is taken over in the same statement that would insert a new one.
type GormSyncLock struct {
	conn *Connector
	now  func() time.Time
}

// NewGormSyncLock creates a new GormSyncLock
func NewGormSyncLock(conn *Connector) *GormSyncLock {
	return &GormSyncLock{conn: conn, now: time.Now}
}

// Acquire inserts the lease, or takes it over when the current one has expired
func (l *GormSyncLock) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	db, err := l.conn.DB(ctx)
	if err != nil {
		return false, err
	}

	now := l.now().UTC()
	lease := models.SyncLockModel{
		Key:        key,
		Holder:     holder,
		ExpiresAt:  now.Add(ttl),
		AcquiredAt: now,
	}

	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "expires_at", "acquired_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "sync_locks.expires_at < ?", Vars: []any{now}},
		}},
	}).Create(&lease)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release deletes the lease if holder still owns it
func (l *GormSyncLock) Release(ctx context.Context, key, holder string) error {
	db, err := l.conn.DB(ctx)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Where(clause.Eq{Column: "key", Value: key}).
		Where(clause.Eq{Column: "holder", Value: holder}).
		Delete(&models.SyncLockModel{}).Error
}
