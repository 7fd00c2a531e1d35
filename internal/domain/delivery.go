// Package domain defines the core persistence models for the application.
package domain

import "time"

// Delivery records an already-handled inbound webhook delivery, keyed by
// (conversation_id, provider_message_id). The upstream provider delivers
// at-most-once in the happy path but may redeliver after timeouts; a unique
// violation on insert means the delivery was seen before and must be
// acknowledged without buffering again.
type Delivery struct {
	ID                string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ConversationID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_conv_provider_msg,priority:1"`
	ProviderMessageID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_conv_provider_msg,priority:2"`
	CreatedAt         time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt         time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Delivery) TableName() string { return "deliveries" }
