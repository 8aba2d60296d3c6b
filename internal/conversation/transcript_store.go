package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction tells who wrote a transcript line.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// TranscriptEntry is one line of a conversation.
type TranscriptEntry struct {
	ID        uuid.UUID
	Sender    string
	Direction Direction
	Body      string
	CreatedAt time.Time
}

// TranscriptStore persists conversation lines to PostgreSQL for later review.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore returns nil when db is nil so callers can skip recording.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// Append stores one line.
func (s *TranscriptStore) Append(ctx context.Context, entry TranscriptEntry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, sender, direction, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.Sender, string(entry.Direction), entry.Body, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: append transcript: %w", err)
	}
	return nil
}

// History returns the most recent lines for sender, oldest first.
func (s *TranscriptStore) History(ctx context.Context, sender string, limit int) ([]TranscriptEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, direction, body, created_at
		FROM (
			SELECT id, sender, direction, body, created_at
			FROM conversation_messages
			WHERE sender = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load transcript: %w", err)
	}
	defer rows.Close()

	var out []TranscriptEntry
	for rows.Next() {
		var entry TranscriptEntry
		var direction string
		if err := rows.Scan(&entry.ID, &entry.Sender, &direction, &entry.Body, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan transcript: %w", err)
		}
		entry.Direction = Direction(direction)
		out = append(out, entry)
	}
	return out, rows.Err()
}
