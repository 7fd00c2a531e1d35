// Package services – TurnService
//
// This file implements TurnService, the component that turns a drained buffer
// into one model exchange: load history, call the model with the interview
// instruction, persist the user/assistant pair atomically, apply the lead
// upsert implied by the reply (open touch or completed briefing), and dispatch
// the user-facing text.
//
// Failure policy follows the pipeline's at-least-acknowledge stance: a model
// failure degrades to a fixed apology reply (the conversation survives), while
// store failures abort the turn before anything is persisted or sent.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the conversation identifier only, never message content.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/advdigital/go-lead-intake/internal/buffer"
	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/extract"
	"github.com/advdigital/go-lead-intake/internal/llm"
	"github.com/advdigital/go-lead-intake/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FallbackReply is sent (and persisted as the model turn) when the model call
// fails after retries. The conversation keeps a coherent history either way.
const FallbackReply = "Mensagem recebida, porém com erro. Nossa equipe verificará em breve."

// fragmentSeparator joins buffered fragments into the single combined user
// turn the model sees.
const fragmentSeparator = "\n\n"

// interviewPrompt is the default system instruction driving the intake
// interview and its structured completion contract.
const interviewPrompt = `Você é um assistente de vendas da ADV Digital.
Seu objetivo é coletar dados para criar um site jurídico em 48h.
Colete os seguintes dados:
1. Nome do Advogado
2. Nome do Escritório
3. Especialidades
4. Principal Diferencial

Seja formal, mas prestativo. Pergunte uma coisa por vez.

IMPORTANTE:
Quando o usuário fornecer todos os 4 pontos acima, você DEVE retornar APENAS O SEGUINTE JSON no final da sua resposta, sem markdown (backticks):

[FINALIZADO]
{
    "nome_advogado": "Nome...",
    "nome_escritorio": "Escritório...",
    "especialidades": "Áreas...",
    "diferencial": "Texto do diferencial..."
}
`

// Generator is the model contract required by TurnService.
type Generator interface {
	// Complete sends the system instruction plus ordered turns and returns
	// the model's text reply.
	Complete(ctx context.Context, system string, turns []llm.Turn) (string, error)
}

// Dispatcher is the outbound delivery contract required by TurnService.
type Dispatcher interface {
	// Send delivers text to the conversation's recipient.
	Send(ctx context.Context, recipient, text string) error
}

// modelRoleFor translates storage roles into the model client's taxonomy.
// This map is the single place the two vocabularies meet; rows with an
// unknown role are skipped rather than guessed at.
var modelRoleFor = map[string]string{
	domain.RoleUser:  llm.RoleUser,
	domain.RoleModel: llm.RoleAssistant,
}

// TurnService processes debounced conversation turns.
type TurnService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Buffer is drained by Flush to assemble the combined turn.
	Buffer buffer.Store
	// Model generates assistant replies; nil when no provider is configured.
	Model Generator
	// Dispatch delivers the final reply to the user.
	Dispatch Dispatcher
	// Extractor detects the structured completion payload in replies.
	Extractor *extract.Extractor

	// PauseOnComplete marks the lead AIPaused when a briefing completes, so
	// a human takes over the conversation.
	PauseOnComplete bool
	// SystemPrompt overrides the default interview instruction when set.
	SystemPrompt string

	Log zerolog.Logger
}

func (s *TurnService) systemPrompt() string {
	if s.SystemPrompt != "" {
		return s.SystemPrompt
	}
	return interviewPrompt
}

// Flush drains the conversation's buffer and, when fragments were pending,
// processes them as one combined turn. It returns the number of fragments
// drained. An empty buffer is a quiet no-op so stale triggers and external
// flush calls are always safe.
func (s *TurnService) Flush(ctx context.Context, conversationID string) (int, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "Flush",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return 0, ErrEmptyConversationID
	}
	// Refuse to drain when the turn cannot be completed: fragments stay
	// buffered until the configuration is fixed.
	if s.Model == nil {
		return 0, ErrModelNotConfigured
	}

	frags, err := s.Buffer.Drain(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if len(frags) == 0 {
		turnFlushes.WithLabelValues("empty").Inc()
		return 0, nil
	}

	tlog, err := repo.CreateTurnLog(ctx, s.DB, conversationID, domain.TurnStageProcessing,
		fmt.Sprintf("fragments=%d", len(frags)))
	if err != nil {
		s.Log.Warn().Err(err).Str("conversation_id", conversationID).Msg("turn log create failed")
		tlog = nil
	}

	combined := strings.Join(frags, fragmentSeparator)
	if err := s.Process(ctx, conversationID, combined); err != nil {
		turnFlushes.WithLabelValues("failed").Inc()
		s.advance(ctx, tlog, domain.TurnStageFailed, err.Error())
		return len(frags), err
	}

	turnFlushes.WithLabelValues("dispatched").Inc()
	s.advance(ctx, tlog, domain.TurnStageDispatched, fmt.Sprintf("fragments=%d", len(frags)))
	return len(frags), nil
}

// Process runs one combined turn for a conversation: history in, reply out,
// both persisted, lead upserted, final text dispatched.
func (s *TurnService) Process(ctx context.Context, conversationID, combined string) error {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if s.Model == nil {
		return ErrModelNotConfigured
	}

	lead, err := repo.GetLead(ctx, s.DB, conversationID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if lead != nil && lead.AIPaused {
		s.Log.Info().Str("conversation_id", conversationID).
			Msg("automated handling paused; turn skipped")
		return nil
	}

	history, err := repo.ListMessages(s.DB.WithContext(ctx), conversationID, 0)
	if err != nil {
		return err
	}
	turns := make([]llm.Turn, 0, len(history)+1)
	for _, m := range history {
		role, ok := modelRoleFor[m.Role]
		if !ok {
			continue
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: combined})

	reply, err := s.Model.Complete(ctx, s.systemPrompt(), turns)
	if err != nil {
		modelFailures.Inc()
		s.Log.Error().Err(err).Str("conversation_id", conversationID).
			Msg("model completion failed; sending fallback reply")
		reply = FallbackReply
	}

	// Persist the user and assistant turns atomically so history ordering
	// never shows a question without its answer.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessage(tx, conversationID, domain.RoleUser, combined); err != nil {
			return err
		}
		_, err := repo.CreateMessage(tx, conversationID, domain.RoleModel, reply)
		return err
	})
	if err != nil {
		return err
	}

	text := reply
	if completed, clean := s.Extractor.Extract(reply); completed != nil {
		fields := domain.Lead{
			LawyerName:     completed.LawyerName,
			FirmName:       completed.FirmName,
			Specialties:    completed.Specialties,
			Differentiator: completed.Differentiator,
			Notes:          completed.Notes,
		}
		if err := repo.CompleteLead(ctx, s.DB, conversationID, fields, s.PauseOnComplete); err != nil {
			return err
		}
		briefingsCompleted.Inc()
		s.Log.Info().Str("conversation_id", conversationID).Msg("briefing completed")
		text = clean
	} else if err := repo.TouchLeadOpen(ctx, s.DB, conversationID); err != nil {
		return err
	}

	// The exchange is already persisted; a delivery failure is reported but
	// cannot lose the conversation.
	if err := s.Dispatch.Send(ctx, conversationID, text); err != nil {
		dispatchFailures.Inc()
		return fmt.Errorf("dispatch reply: %w", err)
	}
	return nil
}

// advance moves a turn-log row to a new stage; diagnostics only, never fatal.
func (s *TurnService) advance(ctx context.Context, tlog *domain.TurnLog, stage, detail string) {
	if tlog == nil {
		return
	}
	if err := repo.AdvanceTurnLog(ctx, s.DB, tlog.ID, stage, detail); err != nil {
		s.Log.Warn().Err(err).Str("turn_log_id", tlog.ID).Msg("turn log advance failed")
	}
}
