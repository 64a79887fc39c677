// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for BloodTest
// records. Every read is scoped by owner so a record belonging to another
// user is indistinguishable from a missing one.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// summaryColumns excludes the large text and report columns.
var summaryColumns = []string{"id", "user_id", "filename", "status", "created_at"}

// CreateBloodTest inserts a fully populated record.
func CreateBloodTest(ctx context.Context, db *gorm.DB, bt *domain.BloodTest) error {
	return db.WithContext(ctx).Create(bt).Error
}

// GetBloodTest fetches a record by ID and owner. The report bytes are
// included only when withReport is true.
func GetBloodTest(ctx context.Context, db *gorm.DB, id, userID string, withReport bool) (*domain.BloodTest, error) {
	var bt domain.BloodTest
	q := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID)
	if !withReport {
		q = q.Omit("report_pdf")
	}
	if err := q.First(&bt).Error; err != nil {
		return nil, err
	}
	return &bt, nil
}

// ListBloodTests returns the user's records newest first, without the
// heavy columns. limit <= 0 means no limit.
func ListBloodTests(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.BloodTest, error) {
	var out []domain.BloodTest
	q := db.WithContext(ctx).
		Select(summaryColumns).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
