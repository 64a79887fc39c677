package domain

import "time"

// Idempotency records the outcome of a previously processed upload keyed by
// (user_id, scope, key). A retry carrying the same Idempotency-Key replays the
// referenced resource instead of running the workflow (and charging) again.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:char(36);not null;uniqueIndex:ux_idem_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// ScopeBloodTestUpload is the idempotency scope for analysis uploads.
const ScopeBloodTestUpload = "blood_test_upload"
