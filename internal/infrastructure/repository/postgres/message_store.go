package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vessellink/veddy/internal/core/domain"
)

// MessageStore persists question/answer exchanges per user.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (r *MessageStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	topics, err := json.Marshal(msg.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO messages (id, user_id, query, answer, table_mode, comparison_mode, topics, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, msg.ID, msg.UserID, msg.Query, msg.Answer, msg.TableMode, msg.ComparisonMode, topics, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListRecent returns the newest limit exchanges in chronological order.
func (r *MessageStore) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, query, answer, table_mode, comparison_mode, topics, created_at
FROM messages
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		var topics []byte
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Query,
			&msg.Answer,
			&msg.TableMode,
			&msg.ComparisonMode,
			&topics,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		if len(topics) > 0 {
			if err := json.Unmarshal(topics, &msg.Topics); err != nil {
				return nil, fmt.Errorf("unmarshal topics: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
