package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/jmoiron/sqlx"
)

// ConversationRepository implements repository.ConversationRepository for
// PostgreSQL. Only conversations created with message storage on are written
// through here; the in-memory store stays authoritative for the session.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationRepository{db: db}
}

// Insert stores a new conversation row
func (r *ConversationRepository) Insert(ctx context.Context, conv *models.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_conversation
		(conversation_id, device_id, locale, version_id, store_messages, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', now(), now())
	`, conv.ConversationID, conv.DeviceID, conv.Locale, conv.VersionID, conv.StoreMessages)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Get loads a conversation and, when storage is on, its messages
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, `
		SELECT conversation_id, COALESCE(device_id, ''), COALESCE(locale, ''), version_id,
		       store_messages, COALESCE(summary, ''), created_at
		FROM chat_conversation
		WHERE conversation_id = $1
	`, conversationID).Scan(&conv.ConversationID, &conv.DeviceID, &conv.Locale, &conv.VersionID,
		&conv.StoreMessages, &conv.Summary, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv.Messages = []models.Message{}
	if conv.StoreMessages {
		rows, err := r.db.QueryxContext(ctx, `
			SELECT role, content, created_at
			FROM chat_message
			WHERE conversation_id = $1
			ORDER BY created_at
		`, conversationID)
		if err != nil {
			return nil, fmt.Errorf("get conversation messages: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var msg models.Message
			if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan message: %w", err)
			}
			conv.Messages = append(conv.Messages, msg)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate messages: %w", err)
		}
	}
	return &conv, nil
}

// Delete removes a conversation and reports whether a row existed
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM chat_conversation WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete conversation rows: %w", err)
	}
	return affected > 0, nil
}

// AddMessage appends a message and touches the conversation
func (r *ConversationRepository) AddMessage(ctx context.Context, conversationID string, msg models.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_message (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, now())
	`, conversationID, msg.Role, msg.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE chat_conversation SET updated_at = now() WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// SetSummary updates the running conversation summary
func (r *ConversationRepository) SetSummary(ctx context.Context, conversationID, summary string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_conversation
		SET summary = $1, updated_at = now()
		WHERE conversation_id = $2
	`, summary, conversationID)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}
