// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the credential store and the two
// balance mutations of the credit ledger.
//
// Balance rules:
//   - ConsumeCredit is a single conditional UPDATE (credits >= 1); there is
//     no read-modify-write, so concurrent callers can never both succeed on
//     a balance of one.
//   - GrantCredits increments in place. Callers guarantee at-most-once via
//     MarkCreditsAdded in the same transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrDuplicate indicates a unique constraint rejected the insert.
	ErrDuplicate = errors.New("duplicate")
	// ErrNoCredits is returned by ConsumeCredit when the balance is below one.
	ErrNoCredits = errors.New("no credits")
)

// CreateUser inserts a user with a zero balance. Returns ErrDuplicate when
// the email is already registered.
func CreateUser(ctx context.Context, db *gorm.DB, email, fullName, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		Credits:      0,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUserByID fetches a user or ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by normalized email or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetCredits returns the current balance for userID.
func GetCredits(ctx context.Context, db *gorm.DB, userID string) (int, error) {
	var row struct{ Credits int }
	res := db.WithContext(ctx).Model(&domain.User{}).Select("credits").Where("id = ?", userID).Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return row.Credits, nil
}

// ConsumeCredit atomically decrements the balance by one if and only if it
// is at least one. Returns ErrNoCredits when no row qualified.
func ConsumeCredit(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND is_active = ? AND credits >= 1", userID, true).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits - 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoCredits
	}
	return nil
}

// GrantCredits increments the balance by n (n > 0). Returns ErrNotFound when
// the user does not exist.
func GrantCredits(ctx context.Context, db *gorm.DB, userID string, n int) error {
	if n <= 0 {
		return errors.New("grant must be positive")
	}
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits + ?", n),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
