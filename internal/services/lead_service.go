// Package services – LeadService
//
// This file implements LeadService, the read/admin side of the lead store:
// paginated listing for the back office and the resume operation that hands a
// paused conversation back to the assistant.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/repo"
)

// LeadService provides lead listing and lifecycle operations.
type LeadService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// ListPage returns a page of leads ordered by most recent activity, plus the
// total count. Invalid page/pageSize values get defaults.
func (s *LeadService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Lead, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountLeads(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Lead{}, 0, nil
	}

	items, err := repo.ListLeadsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Resume clears the AIPaused flag so automated handling picks the
// conversation back up. Returns ErrLeadNotFound when no lead exists.
func (s *LeadService) Resume(ctx context.Context, conversationID string) error {
	err := repo.SetAIPaused(ctx, s.DB, conversationID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrLeadNotFound
	}
	return err
}
