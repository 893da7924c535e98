package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptStore persists conversations and messages to PostgreSQL for
// long-term history. All methods are nil-receiver safe so transcript
// persistence can be disabled by simply not configuring a database.
type TranscriptStore struct {
	db             *sql.DB
	excludedPhones map[string]struct{}
}

// NewTranscriptStore creates a transcript store. Phones in excludePhones
// (test lines, staff numbers) are never persisted.
func NewTranscriptStore(db *sql.DB, excludePhones []string) *TranscriptStore {
	if db == nil {
		return nil
	}
	excluded := make(map[string]struct{})
	for _, phone := range excludePhones {
		digits := phoneDigits(phone)
		if digits != "" {
			excluded[digits] = struct{}{}
		}
	}
	return &TranscriptStore{db: db, excludedPhones: excluded}
}

func phoneDigits(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// ConversationID derives the stable transcript key for a phone number.
func ConversationID(phone string) string {
	return fmt.Sprintf("wa:%s", phoneDigits(phone))
}

func (s *TranscriptStore) isExcluded(phone string) bool {
	if s == nil || len(s.excludedPhones) == 0 {
		return false
	}
	_, excluded := s.excludedPhones[phoneDigits(phone)]
	return excluded
}

// EnsureConversation creates or touches the conversation row and returns
// its UUID.
func (s *TranscriptStore) EnsureConversation(ctx context.Context, phone string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}
	if s.isExcluded(phone) {
		return uuid.Nil, nil
	}

	conversationID := ConversationID(phone)

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE conversation_id = $1`,
		conversationID,
	).Scan(&existingID)

	if err == nil {
		s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now(), existingID,
		)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("conversation: failed to check existing: %w", err)
	}

	newID := uuid.New()
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, conversation_id, phone, status, channel,
			message_count, patient_message_count, agent_message_count,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, newID, conversationID, phoneDigits(phone), "active", "whatsapp",
		0, 0, 0, now, now, now,
	)
	if err != nil {
		// Another worker may have created it between the SELECT and INSERT.
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, phone)
		}
		return uuid.Nil, fmt.Errorf("conversation: failed to create: %w", err)
	}
	return newID, nil
}

// AppendMessage persists a transcript line and bumps the counters.
func (s *TranscriptStore) AppendMessage(ctx context.Context, phone string, msg TranscriptMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.isExcluded(phone) {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, phone); err != nil {
		return err
	}

	conversationID := ConversationID(phone)
	msgID := uuid.New()
	if msg.ID != "" {
		if parsed, parseErr := uuid.Parse(msg.ID); parseErr == nil {
			msgID = parsed
		}
	}
	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, from_phone, to_phone, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, msgID, conversationID, msg.Role, msg.Body, msg.From, msg.To, timestamp)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: failed to read insert result: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	counterColumn := "message_count"
	if msg.Role == "user" {
		counterColumn = "patient_message_count"
	} else if msg.Role == "assistant" {
		counterColumn = "agent_message_count"
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE conversations SET
			message_count = message_count + 1,
			%s = %s + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE conversation_id = $2
	`, counterColumn, counterColumn), timestamp, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: failed to update counters: %w", err)
	}
	return nil
}

// EndConversation marks a transcript as finished.
func (s *TranscriptStore) EndConversation(ctx context.Context, phone, status string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if status == "" {
		status = "ended"
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = $1,
			ended_at = $2,
			updated_at = $2
		WHERE conversation_id = $3 AND ended_at IS NULL
	`, status, now, ConversationID(phone))
	return err
}

// MessageRecord is one stored transcript line.
type MessageRecord struct {
	ID             uuid.UUID
	ConversationID string
	Role           string
	Content        string
	FromPhone      string
	ToPhone        string
	CreatedAt      time.Time
}

// GetMessages retrieves stored transcript lines, oldest first.
func (s *TranscriptStore) GetMessages(ctx context.Context, phone string, limit int) ([]MessageRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, conversation_id, role, content, from_phone, to_phone, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	args := []any{ConversationID(phone)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []MessageRecord
	for rows.Next() {
		var msg MessageRecord
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.FromPhone, &msg.ToPhone, &msg.CreatedAt,
		)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
