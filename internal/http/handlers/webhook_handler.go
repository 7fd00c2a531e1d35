// Webhook HTTP handler.
//
// This file exposes the inbound endpoint the messaging provider calls:
//   - POST /webhook   (Evolution-style messages.upsert envelope)
//
// The handler is transport-thin: it unwraps the provider envelope, lifts each
// message into the intake service's Inbound shape, and acknowledges. Every
// non-error outcome returns 200 so the provider stops redelivering; only a
// store failure (where redelivery is the correct recovery) returns 5xx.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/services"
)

// eventMessagesUpsert is the only provider event carrying inbound user text.
const eventMessagesUpsert = "messages.upsert"

// IntakeService defines the inbound-message operations required by the
// webhook endpoint. Implementations must be safe for concurrent use.
type IntakeService interface {
	// Handle buffers one inbound message and arms the debounced flush.
	Handle(ctx context.Context, in services.Inbound) (services.Outcome, error)
}

// FlushService defines the buffer-drain operation exposed via the flush
// endpoint for external delayed-task drivers.
type FlushService interface {
	// Flush drains and processes the conversation's pending fragments,
	// returning how many were drained.
	Flush(ctx context.Context, conversationID string) (int, error)
}

// LeadService defines lead listing and lifecycle operations.
type LeadService interface {
	// ListPage returns a page of leads and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Lead, int64, error)
	// Resume clears the paused flag for a conversation's lead.
	Resume(ctx context.Context, conversationID string) error
}

// Handlers groups the HTTP endpoints for intake, flushing, and leads.
type Handlers struct {
	intake IntakeService
	flush  FlushService
	leads  LeadService

	// flushSecret authorizes the external flush trigger; empty disables it.
	flushSecret string
}

// New constructs a Handlers instance bound to the given services.
func New(intake IntakeService, flush FlushService, leads LeadService, flushSecret string) *Handlers {
	return &Handlers{intake: intake, flush: flush, leads: leads, flushSecret: flushSecret}
}

//
// DTOs
//

// webhookKey identifies one provider message within a conversation.
type webhookKey struct {
	// RemoteJID is the conversation identifier (e.g. "5511...@s.whatsapp.net").
	RemoteJID string `json:"remoteJid"`
	// FromMe marks echoes of our own outbound replies.
	FromMe bool `json:"fromMe"`
	// ID is the provider's message id, used for redelivery suppression.
	ID string `json:"id"`
}

// webhookMessageBody carries the text in one of two provider shapes.
type webhookMessageBody struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
}

// text returns the message text regardless of which shape the provider used.
// Non-text messages (media, reactions) yield "".
func (b *webhookMessageBody) text() string {
	if b == nil {
		return ""
	}
	if b.Conversation != "" {
		return b.Conversation
	}
	if b.ExtendedTextMessage != nil {
		return b.ExtendedTextMessage.Text
	}
	return ""
}

type webhookMessage struct {
	Key     webhookKey          `json:"key"`
	Message *webhookMessageBody `json:"message"`
}

// WebhookRequest is the provider's event envelope.
type WebhookRequest struct {
	Event string `json:"event" binding:"required"`
	Data  struct {
		Messages []webhookMessage `json:"messages"`
	} `json:"data"`
}

// WebhookResponse reports what intake did with the delivery.
type WebhookResponse struct {
	Buffered int  `json:"buffered"`
	Ignored  bool `json:"ignored,omitempty"`
}

//
// Handlers
//

// Webhook handles POST /webhook.
//
// Responses:
//   - 200 with {"buffered": n} once every message in the envelope is handled
//   - 200 with {"ignored": true} for events other than messages.upsert
//   - 400 for a malformed envelope
//   - 500 when the conversation store rejected the message (provider retries)
func (h *Handlers) Webhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook payload")
		return
	}
	if req.Event != eventMessagesUpsert {
		ok(c, http.StatusOK, WebhookResponse{Ignored: true})
		return
	}

	buffered := 0
	for _, m := range req.Data.Messages {
		out, err := h.intake.Handle(c.Request.Context(), services.Inbound{
			ConversationID:    m.Key.RemoteJID,
			Text:              m.Message.text(),
			ProviderMessageID: m.Key.ID,
			OutgoingEcho:      m.Key.FromMe,
		})
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeIntakeFailed, "could not accept message")
			return
		}
		if out == services.OutcomeBuffered {
			buffered++
		}
	}
	ok(c, http.StatusOK, WebhookResponse{Buffered: buffered})
}
