// Package services – IntakeService
//
// This file implements IntakeService, the webhook-side half of the pipeline.
// It filters what should never enter the buffer (outgoing echoes, empty text,
// provider redeliveries), records the open lead, appends the fragment to the
// debounce buffer, and arms the flush trigger.
//
// The intake path never calls the model and never blocks on processing: its
// whole job is done once the fragment is safely buffered and a flush is armed.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/advdigital/go-lead-intake/internal/buffer"
	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Armer is the scheduling contract required by IntakeService.
type Armer interface {
	// Arm schedules (or re-schedules) a debounced flush for the conversation.
	Arm(ctx context.Context, conversationID string) error
}

// Inbound is one decoded webhook message, already lifted out of the
// provider's envelope by the handler.
type Inbound struct {
	ConversationID    string
	Text              string
	ProviderMessageID string
	// OutgoingEcho marks deliveries of our own outbound replies, which the
	// provider mirrors back and must never re-enter the pipeline.
	OutgoingEcho bool
}

// Outcome classifies what intake did with a message. All outcomes are
// acknowledged to the provider; only store failures surface as errors.
type Outcome string

const (
	// OutcomeIgnored – echo, empty text, or missing conversation id.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate – provider redelivery suppressed by the dedup record.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeBuffered – fragment stored and a flush armed.
	OutcomeBuffered Outcome = "buffered"
)

// IntakeService accepts inbound messages into the debounce buffer.
type IntakeService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Buffer receives accepted fragments.
	Buffer buffer.Store
	// Sched arms the debounced flush after each accepted fragment.
	Sched Armer

	// DeliveryTTL bounds how long redelivery suppression records are kept.
	DeliveryTTL time.Duration

	Log zerolog.Logger
}

// Handle processes one inbound message. Echoes and empty messages are
// acknowledged and dropped; redeliveries are acknowledged and dropped; real
// messages touch the lead, enter the buffer, and (re-)arm the flush window.
func (s *IntakeService) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	tr := otel.Tracer("services/IntakeService")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(attribute.String("conversation.id", in.ConversationID)),
	)
	defer span.End()

	text := strings.TrimSpace(in.Text)
	if in.OutgoingEcho || text == "" || strings.TrimSpace(in.ConversationID) == "" {
		intakeMessages.WithLabelValues(string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	if in.ProviderMessageID != "" {
		err := repo.CreateDelivery(ctx, s.DB, in.ConversationID, in.ProviderMessageID, s.DeliveryTTL)
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			intakeMessages.WithLabelValues(string(OutcomeDuplicate)).Inc()
			s.Log.Debug().Str("conversation_id", in.ConversationID).
				Str("provider_message_id", in.ProviderMessageID).
				Msg("redelivery suppressed")
			return OutcomeDuplicate, nil
		case err != nil:
			return "", err
		}
		if err := repo.PurgeExpiredDeliveries(ctx, s.DB, time.Now().UTC()); err != nil {
			s.Log.Warn().Err(err).Msg("delivery purge failed")
		}
	}

	tlog, err := repo.CreateTurnLog(ctx, s.DB, in.ConversationID, domain.TurnStageReceived, "")
	if err != nil {
		s.Log.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("turn log create failed")
		tlog = nil
	}

	if err := repo.TouchLeadOpen(ctx, s.DB, in.ConversationID); err != nil {
		return "", err
	}

	first, err := s.Buffer.Append(ctx, in.ConversationID, text)
	if err != nil {
		s.markFailed(ctx, tlog, err)
		return "", err
	}
	if err := s.Sched.Arm(ctx, in.ConversationID); err != nil {
		s.markFailed(ctx, tlog, err)
		return "", err
	}

	if tlog != nil {
		if err := repo.AdvanceTurnLog(ctx, s.DB, tlog.ID, domain.TurnStageBuffered, fmt.Sprintf("first=%t", first)); err != nil {
			s.Log.Warn().Err(err).Str("turn_log_id", tlog.ID).Msg("turn log advance failed")
		}
	}
	intakeMessages.WithLabelValues(string(OutcomeBuffered)).Inc()
	return OutcomeBuffered, nil
}

func (s *IntakeService) markFailed(ctx context.Context, tlog *domain.TurnLog, cause error) {
	if tlog == nil {
		return
	}
	if err := repo.AdvanceTurnLog(ctx, s.DB, tlog.ID, domain.TurnStageFailed, cause.Error()); err != nil {
		s.Log.Warn().Err(err).Str("turn_log_id", tlog.ID).Msg("turn log advance failed")
	}
}
