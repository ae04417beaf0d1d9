package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// LibSQLConversationStore implements ConversationStore on a LibSQL database.
// Messages are persisted as type-tagged JSON envelopes with a per-conversation
// sequence number so reload order never depends on timestamp resolution.
type LibSQLConversationStore struct {
	db *sql.DB
}

// NewLibSQLConversationStore creates a new LibSQL conversation store.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{
		db: db,
	}
}

// SaveTurn appends a message to the conversation's history.
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, conversationID string, msg ports.Message) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
		INSERT INTO conversation_messages (conversation_id, seq, role, blocks, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM conversation_messages WHERE conversation_id = ?), ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, conversationID, conversationID, string(msg.Role), string(msgJSON), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// LoadHistory loads the last limit messages for a conversation in
// chronological order. A non-positive limit loads the full history.
func (s *LibSQLConversationStore) LoadHistory(ctx context.Context, conversationID string, limit int) ([]ports.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	query := `
		SELECT blocks FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []ports.Message
	for rows.Next() {
		var msgJSON string
		if err := rows.Scan(&msgJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		var msg ports.Message
		if err := json.Unmarshal([]byte(msgJSON), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Ensure LibSQLConversationStore implements the ConversationStore interface.
var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
