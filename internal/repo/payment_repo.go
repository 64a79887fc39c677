// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for payment
// transactions created by hosted checkout.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// CreatePayment records a freshly created checkout session as pending.
func CreatePayment(ctx context.Context, db *gorm.DB, sessionID, userID string, credits int, amountCents int64, currency string) (*domain.PaymentTransaction, error) {
	now := time.Now().UTC()
	p := &domain.PaymentTransaction{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		UserID:        userID,
		Credits:       credits,
		AmountCents:   amountCents,
		Currency:      currency,
		Status:        "open",
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetPaymentBySession fetches a transaction or ErrNotFound.
func GetPaymentBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePaymentStatus stores the latest gateway-reported statuses. An empty
// status leaves the stored value untouched.
func UpdatePaymentStatus(ctx context.Context, db *gorm.DB, sessionID, status, paymentStatus string) error {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if status != "" {
		fields["status"] = status
	}
	if paymentStatus != "" {
		fields["payment_status"] = paymentStatus
	}
	res := db.WithContext(ctx).Model(&domain.PaymentTransaction{}).Where("session_id = ?", sessionID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCreditsAdded flips credits_added from false to true. It reports
// whether this call performed the flip; false means another reconciliation
// already claimed it (or the session is unknown).
func MarkCreditsAdded(ctx context.Context, db *gorm.DB, sessionID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentTransaction{}).
		Where("session_id = ? AND credits_added = ?", sessionID, false).
		Updates(map[string]any{
			"credits_added":  true,
			"payment_status": domain.PaymentPaid,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkWebhookProcessed records that a verified webhook was handled.
func MarkWebhookProcessed(ctx context.Context, db *gorm.DB, sessionID string) error {
	return db.WithContext(ctx).
		Model(&domain.PaymentTransaction{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"webhook_processed": true, "updated_at": time.Now().UTC()}).Error
}
