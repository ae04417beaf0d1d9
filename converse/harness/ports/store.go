package harnessports

import "context"

// ConversationStore persists conversation history. Persistence is an
// external collaborator: the driver writes best-effort and never fails a
// turn on store errors.
type ConversationStore interface {
	SaveTurn(ctx context.Context, conversationID string, msg Message) error
	LoadHistory(ctx context.Context, conversationID string, limit int) ([]Message, error) // oldest first
}
