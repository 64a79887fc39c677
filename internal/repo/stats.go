// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// BloodTestsStats returns the number of records owned by userID and the
// newest CreatedAt among them (nil when there are none). Records are
// immutable, so these two values change whenever the list does.
func BloodTestsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.BloodTest{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.BloodTest{}).
		Where("user_id = ?", userID).
		Select("created_at").Order("created_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
