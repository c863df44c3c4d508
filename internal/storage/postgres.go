package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatsphere/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
        INSERT INTO messages (sender_id, recipient_id, group_id, content, message_type, media_url, call_duration, call_status)
        VALUES ($1, NULLIF($2, 0), NULLIF($3, 0), $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `

	err := s.pool.QueryRow(ctx, query,
		m.SenderID,
		m.RecipientID,
		m.GroupID,
		m.Content,
		m.Type,
		m.MediaURL,
		m.CallDuration,
		m.CallStatus,
	).Scan(&m.ID, &m.Timestamp)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to save message from %d: %v", m.SenderID, err)
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return m, nil
}

func (s *Postgres) MarkRead(ctx context.Context, messageIDs []int, readerID int) ([]*models.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := `
        UPDATE messages
        SET is_read = TRUE, read_at = $3
        WHERE id = ANY($1)
          AND recipient_id = $2
          AND is_read = FALSE
          AND is_deleted = FALSE
        RETURNING id, sender_id, recipient_id, created_at
    `

	rows, err := s.pool.Query(ctx, query, messageIDs, readerID, time.Now().UTC())
	if err != nil {
		log.Printf("[REPO ERROR] Mark read failed for reader %d: %v", readerID, err)
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer rows.Close()

	var updated []*models.Message
	for rows.Next() {
		m := &models.Message{IsRead: true}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan read receipt: %w", err)
		}
		updated = append(updated, m)
	}
	return updated, rows.Err()
}

func (s *Postgres) GetGroupMembers(ctx context.Context, groupID int) (map[int]struct{}, error) {
	query := `SELECT user_id FROM group_members WHERE group_id = $1`

	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		log.Printf("[REPO ERROR] Group member lookup failed for group %d: %v", groupID, err)
		return nil, fmt.Errorf("group members: %w", err)
	}
	defer rows.Close()

	members := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members[id] = struct{}{}
	}
	return members, rows.Err()
}

func (s *Postgres) GetUser(ctx context.Context, userID int) (*models.User, error) {
	query := `
        SELECT id, username, email, password_hash, profile_pic, about, created_at
        FROM users WHERE id = $1
    `
	return s.scanUser(s.pool.QueryRow(ctx, query, userID))
}

func (s *Postgres) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
        SELECT id, username, email, password_hash, profile_pic, about, created_at
        FROM users WHERE username = $1
    `
	return s.scanUser(s.pool.QueryRow(ctx, query, username))
}

func (s *Postgres) scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password_Hash, &u.ProfilePic, &u.About, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// PurgeDeleted hard-deletes soft-deleted messages older than the retention
// window. Called by the janitor task, not part of the core gateway.
func (s *Postgres) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM messages WHERE is_deleted = TRUE AND created_at < $1`

	tag, err := s.pool.Exec(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		log.Printf("[REPO ERROR] Purge failed: %v", err)
		return 0, fmt.Errorf("purge deleted: %w", err)
	}
	return tag.RowsAffected(), nil
}
