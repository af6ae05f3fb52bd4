package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `id, notification_type, chat_id, status, user_group, message,
	messenger_platform, messenger_thread_id, timeout_at, created_at, resolved_at`

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Type, n.ChatID, n.Status, n.UserGroup, n.Message,
		n.MessengerPlatform, n.MessengerThreadID, n.TimeoutAt, n.CreatedAt, n.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.Create: %w", err)
	}

	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notificationRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.GetByID: %w", err)
	}

	return n, nil
}

func (r *NotificationRepo) GetByThreadID(ctx context.Context, platform, threadID string) (*domain.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE messenger_platform = $1 AND messenger_thread_id = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		platform, threadID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notificationRepo.GetByThreadID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.GetByThreadID: %w", err)
	}

	return n, nil
}

func (r *NotificationRepo) AttachThread(ctx context.Context, id uuid.UUID, platform, threadID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET messenger_platform = $1, messenger_thread_id = $2 WHERE id = $3`,
		platform, threadID, id,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.AttachThread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notificationRepo.AttachThread: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *NotificationRepo) ListByStatus(ctx context.Context, group string, status domain.NotificationStatus, limit int) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_group = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		group, status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.ListByStatus: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows, "notificationRepo.ListByStatus")
}

func (r *NotificationRepo) ListExpired(ctx context.Context) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE notification_type = $1 AND status <> $2 AND timeout_at < now()
		 ORDER BY created_at
		 LIMIT 500`,
		domain.NotificationTypeInterrupt, domain.NotificationStatusResolved,
	)
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.ListExpired: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows, "notificationRepo.ListExpired")
}

func (r *NotificationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.NotificationStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications
		 SET status = $1,
		     resolved_at = CASE WHEN $1 = 'RESOLVED' THEN now() ELSE resolved_at END
		 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notificationRepo.UpdateStatus: %w", domain.ErrNotFound)
	}

	return nil
}

// ResolveByChat resolves every open interrupt notification of a chat.
func (r *NotificationRepo) ResolveByChat(ctx context.Context, chatID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1, resolved_at = now()
		 WHERE chat_id = $2 AND notification_type = $3 AND status <> $1`,
		domain.NotificationStatusResolved, chatID, domain.NotificationTypeInterrupt,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.ResolveByChat: %w", err)
	}

	return nil
}

func (r *NotificationRepo) ExtendTimeout(ctx context.Context, id uuid.UUID, timeoutAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET timeout_at = $1 WHERE id = $2`,
		timeoutAt, id,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.ExtendTimeout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notificationRepo.ExtendTimeout: %w", domain.ErrNotFound)
	}

	return nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.Type, &n.ChatID, &n.Status, &n.UserGroup, &n.Message,
		&n.MessengerPlatform, &n.MessengerThreadID, &n.TimeoutAt, &n.CreatedAt, &n.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows, caller string) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return out, nil
}
