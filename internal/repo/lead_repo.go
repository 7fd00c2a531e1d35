// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Lead model.
//
// All lead writes are keyed by conversation id with conflict-is-update (never
// conflict-is-duplicate) semantics, enforced by the unique index on
// conversation_id plus ON CONFLICT clauses.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/advdigital/go-lead-intake/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetLead fetches the lead for a conversation, or ErrNotFound.
func GetLead(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// TouchLeadOpen inserts an open lead for the conversation if none exists, or
// bumps updated_at when one does. Existing fields and status are never
// overwritten here; a completed briefing stays completed.
func TouchLeadOpen(ctx context.Context, db *gorm.DB, conversationID string) error {
	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Status:         domain.LeadStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": now}),
	}).Create(lead).Error
}

// CompleteLead upserts the extracted briefing fields, marks the lead
// completed, and optionally pauses automated handling.
func CompleteLead(ctx context.Context, db *gorm.DB, conversationID string, fields domain.Lead, pause bool) error {
	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Status:         domain.LeadStatusComplete,
		LawyerName:     fields.LawyerName,
		FirmName:       fields.FirmName,
		Specialties:    fields.Specialties,
		Differentiator: fields.Differentiator,
		Notes:          fields.Notes,
		AIPaused:       pause,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":         domain.LeadStatusComplete,
			"lawyer_name":    fields.LawyerName,
			"firm_name":      fields.FirmName,
			"specialties":    fields.Specialties,
			"differentiator": fields.Differentiator,
			"notes":          fields.Notes,
			"ai_paused":      pause,
			"updated_at":     now,
		}),
	}).Create(lead).Error
}

// SetAIPaused toggles the automated-handling flag for an existing lead.
// Returns ErrNotFound when no lead exists for the conversation.
func SetAIPaused(ctx context.Context, db *gorm.DB, conversationID string, paused bool) error {
	res := db.WithContext(ctx).Model(&domain.Lead{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]interface{}{"ai_paused": paused, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountLeads returns the total number of leads for pagination.
func CountLeads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Lead{}).Count(&total).Error
	return total, err
}

// ListLeadsPage returns a page of leads ordered by most recent activity.
func ListLeadsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	err := db.WithContext(ctx).
		Order("updated_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
