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

type CheckpointRepo struct {
	pool *pgxpool.Pool
}

func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

func (r *CheckpointRepo) Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	var (
		version int
		state   []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT version, state FROM checkpoints WHERE thread_id = $1 ORDER BY version DESC LIMIT 1`,
		threadID,
	).Scan(&version, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checkpointRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpointRepo.Get: %w", err)
	}

	t, err := domain.DecodeThread(state, version)
	if err != nil {
		return nil, fmt.Errorf("checkpointRepo.Get: %w", err)
	}
	return t, nil
}

// Put inserts version t.Version+1 only while t.Version is the stored latest.
func (r *CheckpointRepo) Put(ctx context.Context, t *domain.Thread) error {
	state, err := domain.EncodeThread(t)
	if err != nil {
		return fmt.Errorf("checkpointRepo.Put: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, version, state, created_at)
		 SELECT $1, $2 + 1, $3, now()
		 WHERE (SELECT COALESCE(MAX(version), 0) FROM checkpoints WHERE thread_id = $1) = $2`,
		t.ID, t.Version, state,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("checkpointRepo.Put: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("checkpointRepo.Put: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checkpointRepo.Put: version %d is stale: %w", t.Version, domain.ErrConflict)
	}

	t.Version++
	return nil
}

func (r *CheckpointRepo) List(ctx context.Context, threadID uuid.UUID) ([]*domain.Checkpoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT thread_id, version, state, created_at FROM checkpoints WHERE thread_id = $1 ORDER BY version`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("checkpointRepo.List: %w", err)
	}
	defer rows.Close()

	var out []*domain.Checkpoint
	for rows.Next() {
		var cp domain.Checkpoint
		if err := rows.Scan(&cp.ThreadID, &cp.Version, &cp.State, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("checkpointRepo.List: scan: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpointRepo.List: rows: %w", err)
	}

	return out, nil
}
