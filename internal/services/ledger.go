package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/repo"
)

// CreditLedger owns every balance mutation. Each method runs against the
// handle it is given, normally an open transaction, so the mutation commits
// or rolls back together with the record that justifies it.
//
// The balance never goes negative: consumption is a conditional UPDATE in the
// database (see repo.ConsumeCredit) and grants are positive only.
type CreditLedger struct{}

// Consume takes one credit from userID and returns the remaining balance.
// ErrInsufficientCredit means the conditional update matched no row.
func (CreditLedger) Consume(ctx context.Context, tx *gorm.DB, userID string) (int, error) {
	if err := repo.ConsumeCredit(ctx, tx, userID); err != nil {
		if errors.Is(err, repo.ErrNoCredits) {
			return 0, ErrInsufficientCredit
		}
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	n, err := repo.GetCredits(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return n, nil
}

// Grant adds n credits to userID and returns the new balance.
func (CreditLedger) Grant(ctx context.Context, tx *gorm.DB, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: grant must be positive", ErrInvalidInput)
	}
	if err := repo.GrantCredits(ctx, tx, userID, n); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	bal, err := repo.GetCredits(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

// Balance reads the current balance.
func (CreditLedger) Balance(ctx context.Context, db *gorm.DB, userID string) (int, error) {
	n, err := repo.GetCredits(ctx, db, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrNotFound
	}
	return n, err
}
