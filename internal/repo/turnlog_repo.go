// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the TurnLog and
// Delivery models used for diagnostics and webhook redelivery suppression.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/advdigital/go-lead-intake/internal/domain"
)

// ErrDuplicate indicates that a delivery record already exists for the given
// (conversation_id, provider_message_id) tuple.
var ErrDuplicate = errors.New("duplicate")

// CreateTurnLog appends a diagnostic record at the given stage.
func CreateTurnLog(ctx context.Context, db *gorm.DB, conversationID, stage, detail string) (*domain.TurnLog, error) {
	rec := &domain.TurnLog{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Stage:          stage,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	}
	return rec, db.WithContext(ctx).Create(rec).Error
}

// AdvanceTurnLog moves an existing record to a new stage. Failures here are
// diagnostic-only and must never abort the turn; callers log and continue.
func AdvanceTurnLog(ctx context.Context, db *gorm.DB, id, stage, detail string) error {
	return db.WithContext(ctx).Model(&domain.TurnLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"stage": stage, "detail": detail, "updated_at": time.Now().UTC()}).
		Error
}

// CreateDelivery inserts a delivery record and returns ErrDuplicate on unique
// violation, which signals a provider redelivery to be acked and dropped.
func CreateDelivery(ctx context.Context, db *gorm.DB, conversationID, providerMessageID string, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := &domain.Delivery{
		ID:                uuid.NewString(),
		ConversationID:    conversationID,
		ProviderMessageID: providerMessageID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// PurgeExpiredDeliveries removes dedup records past their TTL. Invoked
// opportunistically from the intake path; errors are non-fatal.
func PurgeExpiredDeliveries(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Delivery{}).Error
}
