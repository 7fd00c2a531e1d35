// Package domain defines the persistence models for conversations, leads, and
// turn-processing diagnostics. These types are mapped with GORM and form the
// core data layer of the lead-intake assistant.
package domain

import (
	"time"
)

// Message roles as stored in the conversation history. The "model" label
// follows the upstream provider's taxonomy; translation to the LLM role
// taxonomy happens at a single boundary in the turn service.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Lead statuses. A lead is created "Em Aberto" on first contact and flips to
// "Briefing Concluído" once the interview yields a complete structured record.
const (
	LeadStatusOpen     = "Em Aberto"
	LeadStatusComplete = "Briefing Concluído"
)

// Message represents a single utterance within a conversation. Conversations
// are keyed by the external messaging identifier (e.g. "5511...@s.whatsapp.net");
// they are created implicitly by the first message and never deleted here.
//
// Ordering by (created_at, id) is the sole invariant used to reconstruct the
// model context, so CreatedAt carries a composite index with ConversationID.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(128);not null;index:idx_conv_msgs,priority:1"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','model')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Lead is the structured business record derived from the interview. Exactly
// one row exists per conversation (unique key on ConversationID); writes are
// upserts, never duplicating inserts.
//
// AIPaused suppresses all automated processing for the conversation; it is
// optionally set when a briefing completes and cleared via the resume endpoint.
type Lead struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_lead_conversation"`
	Status         string    `json:"status"          gorm:"type:varchar(32);not null;default:'Em Aberto'"`
	LawyerName     string    `json:"lawyer_name"     gorm:"type:varchar(255)"`
	FirmName       string    `json:"firm_name"       gorm:"type:varchar(255)"`
	Specialties    string    `json:"specialties"     gorm:"type:text"`
	Differentiator string    `json:"differentiator"  gorm:"type:text"`
	Notes          string    `json:"notes"           gorm:"type:text"`
	AIPaused       bool      `json:"ai_paused"       gorm:"column:ai_paused;not null;default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Lead.
func (Lead) TableName() string { return "leads" }

// Turn-log stages. Rows advance received→buffered for intake and
// processing→dispatched (or failed) for flushes.
const (
	TurnStageReceived   = "received"
	TurnStageBuffered   = "buffered"
	TurnStageProcessing = "processing"
	TurnStageDispatched = "dispatched"
	TurnStageFailed     = "failed"
)

// TurnLog is a diagnostic record of turn processing. One row is appended per
// inbound delivery and one per flush; each is updated as the stage advances.
// It is never consulted for business logic.
type TurnLog struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(128);not null;index"`
	Stage          string    `json:"stage"           gorm:"type:varchar(24);not null"`
	Detail         string    `json:"detail"          gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for TurnLog.
func (TurnLog) TableName() string { return "turn_logs" }
