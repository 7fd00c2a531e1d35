// Package services – service-level errors
//
// Sentinel errors returned by the intake and turn services for predictable
// failure cases, so handlers can map them to HTTP results consistently.
package services

import "errors"

var (
	// ErrModelNotConfigured is returned when a turn would require the model
	// but no provider client was constructed (e.g. missing credential). The
	// buffer is left intact so nothing is lost.
	ErrModelNotConfigured = errors.New("model provider not configured")

	// ErrEmptyConversationID is returned when an operation is invoked
	// without a conversation identifier.
	ErrEmptyConversationID = errors.New("empty conversation id")

	// ErrLeadNotFound is returned when no lead exists for the conversation.
	ErrLeadNotFound = errors.New("lead not found")
)
