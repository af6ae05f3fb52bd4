// Package sqlite stores thread checkpoints in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gosuda/skillmatrix/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	state      BLOB    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (thread_id, version)
);
`

var _ domain.Checkpointer = (*Checkpointer)(nil) //nolint:gochecknoglobals // compile-time check

type Checkpointer struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Checkpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	return &Checkpointer{db: db}, nil
}

func (c *Checkpointer) Close() error {
	return c.db.Close()
}

func (c *Checkpointer) Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	var (
		version int
		state   []byte
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT version, state FROM checkpoints WHERE thread_id = ? ORDER BY version DESC LIMIT 1`,
		threadID.String(),
	).Scan(&version, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite.Checkpointer.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.Checkpointer.Get: %w", err)
	}

	t, err := domain.DecodeThread(state, version)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Checkpointer.Get: %w", err)
	}
	return t, nil
}

func (c *Checkpointer) Put(ctx context.Context, t *domain.Thread) error {
	state, err := domain.EncodeThread(t)
	if err != nil {
		return fmt.Errorf("sqlite.Checkpointer.Put: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.Checkpointer.Put: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM checkpoints WHERE thread_id = ?`,
		t.ID.String(),
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("sqlite.Checkpointer.Put: current version: %w", err)
	}
	if current != t.Version {
		return fmt.Errorf("sqlite.Checkpointer.Put: stored version %d, have %d: %w", current, t.Version, domain.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, version, state, created_at) VALUES (?, ?, ?, ?)`,
		t.ID.String(), current+1, state, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("sqlite.Checkpointer.Put: %w", domain.ErrConflict)
		}
		return fmt.Errorf("sqlite.Checkpointer.Put: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.Checkpointer.Put: commit: %w", err)
	}
	t.Version = current + 1
	return nil
}

func (c *Checkpointer) List(ctx context.Context, threadID uuid.UUID) ([]*domain.Checkpoint, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT version, state, created_at FROM checkpoints WHERE thread_id = ? ORDER BY version`,
		threadID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Checkpointer.List: %w", err)
	}
	defer rows.Close()

	var out []*domain.Checkpoint
	for rows.Next() {
		cp := domain.Checkpoint{ThreadID: threadID}
		var createdAt string
		if err := rows.Scan(&cp.Version, &cp.State, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite.Checkpointer.List: scan: %w", err)
		}
		if cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite.Checkpointer.List: parse created_at: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.Checkpointer.List: rows: %w", err)
	}
	return out, nil
}
