package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) Create(ctx context.Context, c *domain.Chat) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, skill_id, status, timespan_start, timespan_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.SkillID, c.Status, c.TimespanStart, c.TimespanEnd, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}

	return nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	var c domain.Chat

	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, skill_id, status, timespan_start, timespan_end, created_at, updated_at
		 FROM chats WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.UserID, &c.SkillID, &c.Status, &c.TimespanStart, &c.TimespanEnd, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}

	return &c, nil
}

func (r *ChatRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Chat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, skill_id, status, timespan_start, timespan_end, created_at, updated_at
		 FROM chats WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListByUser: %w", err)
	}
	defer rows.Close()

	var chats []*domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.SkillID, &c.Status, &c.TimespanStart, &c.TimespanEnd, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("chatRepo.ListByUser: scan: %w", err)
		}
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListByUser: rows: %w", err)
	}

	return chats, nil
}

// UpdateStatus moves a chat to status. Completing a chat also closes its timespan.
func (r *ChatRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ChatStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats
		 SET status = $1,
		     timespan_end = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE timespan_end END,
		     updated_at = now()
		 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chatRepo.UpdateStatus: %w", domain.ErrNotFound)
	}

	return nil
}
