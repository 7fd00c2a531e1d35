// Flush HTTP handler.
//
// This file exposes the external flush trigger:
//   - POST /flush   (drain and process a conversation's pending fragments)
//
// The endpoint exists for delayed-task drivers that schedule flushes outside
// this process (and for operators forcing a stuck buffer through). It shares
// drain-and-process with the internal debounce timer, so whichever fires
// first wins and the loser finds an empty buffer.
//
// Authorization is a shared secret in the X-Flush-Secret header, compared in
// constant time. An unset secret disables the endpoint entirely.
package handlers

import (
	"crypto/hmac"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/advdigital/go-lead-intake/internal/services"
)

// HeaderFlushSecret carries the shared secret for the flush trigger.
const HeaderFlushSecret = "X-Flush-Secret"

// FlushRequest names the conversation whose buffer should be processed.
type FlushRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,min=1"`
}

// FlushResponse reports how many buffered fragments the flush consumed.
// Zero means the buffer was already empty (e.g. the debounce timer won).
type FlushResponse struct {
	Processed int `json:"processed"`
}

// Flush handles POST /flush.
//
// Responses:
//   - 200 with {"processed": n}
//   - 400 for a malformed body
//   - 401 when the secret is missing, wrong, or the endpoint is disabled
//   - 503 when no model provider is configured (fragments stay buffered)
//   - 500 when draining or processing failed
func (h *Handlers) Flush(c *gin.Context) {
	if h.flushSecret == "" ||
		!hmac.Equal([]byte(c.GetHeader(HeaderFlushSecret)), []byte(h.flushSecret)) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid flush secret")
		return
	}

	var req FlushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation_id is required")
		return
	}

	n, err := h.flush.Flush(c.Request.Context(), req.ConversationID)
	switch {
	case errors.Is(err, services.ErrModelNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "model provider not configured")
		return
	case errors.Is(err, services.ErrEmptyConversationID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation_id is required")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeFlushFailed, "flush failed")
		return
	}
	ok(c, http.StatusOK, FlushResponse{Processed: n})
}
