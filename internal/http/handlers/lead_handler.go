// Lead HTTP handlers.
//
// This file exposes the back-office endpoints over the lead store:
//   - GET  /leads               (paginated, most recent activity first)
//   - POST /leads/:id/resume    (hand a paused conversation back to the assistant)
//
// The :id path parameter is the conversation identifier, which is the lead's
// natural key throughout the system.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/services"
	"github.com/advdigital/go-lead-intake/internal/utils"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListLeadsResponse wraps a page of leads and pagination information.
type ListLeadsResponse struct {
	Leads      []domain.Lead `json:"leads"`
	Pagination Pagination    `json:"pagination"`
}

// ResumeResponse confirms that automated handling was re-enabled.
type ResumeResponse struct {
	ConversationID string `json:"conversation_id"`
	Resumed        bool   `json:"resumed"`
}

// clampPagination parses page/page_size query parameters, applying defaults
// and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListLeads handles GET /leads.
func (h *Handlers) ListLeads(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.leads.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list leads")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListLeadsResponse{
		Leads: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ResumeLead handles POST /leads/:id/resume.
func (h *Handlers) ResumeLead(c *gin.Context) {
	conversationID := c.Param("id")

	err := h.leads.Resume(c.Request.Context(), conversationID)
	switch {
	case errors.Is(err, services.ErrLeadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "lead not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeResumeFailed, "could not resume conversation")
		return
	}
	ok(c, http.StatusOK, ResumeResponse{ConversationID: conversationID, Resumed: true})
}
