// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// threads attached to blood tests.
//
// A thread is created lazily; AppendMessages assigns consecutive sequence
// numbers and must run inside the caller's transaction so a question and
// its answer always land together.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// NewMessage is an unsaved message for AppendMessages.
type NewMessage struct {
	Role    string
	Content string
	At      time.Time
}

// GetOrCreateSession returns the thread for testID, creating it if absent.
// Concurrent creators converge on the single row guarded by the unique index.
func GetOrCreateSession(ctx context.Context, db *gorm.DB, testID, userID string) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "test_id"}}, DoNothing: true}).
		Create(s).Error; err != nil {
		return nil, err
	}
	var out domain.ChatSession
	if err := db.WithContext(ctx).Where("test_id = ? AND user_id = ?", testID, userID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// FindSession returns the thread for an owned test or ErrNotFound.
func FindSession(ctx context.Context, db *gorm.DB, testID, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("test_id = ? AND user_id = ?", testID, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// AppendMessages inserts msgs after the current tail of sessionID and
// touches the session's UpdatedAt. The session row is updated first so
// concurrent appenders on the same thread queue on its lock before reading
// the tail; run it inside a transaction.
func AppendMessages(ctx context.Context, db *gorm.DB, sessionID string, msgs ...NewMessage) ([]domain.ChatMessage, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	touched := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", sessionID).
		Update("updated_at", time.Now().UTC())
	if touched.Error != nil {
		return nil, touched.Error
	}
	if touched.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var tail struct{ Seq int }
	if err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Select("COALESCE(MAX(seq), 0) AS seq").
		Where("session_id = ?", sessionID).
		Scan(&tail).Error; err != nil {
		return nil, err
	}

	rows := make([]domain.ChatMessage, len(msgs))
	for i, m := range msgs {
		at := m.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		rows[i] = domain.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Seq:       tail.Seq + i + 1,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: at,
		}
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListMessages returns the thread in order. limit <= 0 means no limit.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
