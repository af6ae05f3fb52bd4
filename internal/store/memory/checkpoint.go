// Package memory is an in-process checkpoint store for tests and single-node
// development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/skillmatrix/internal/domain"
)

var _ domain.Checkpointer = (*Checkpointer)(nil) //nolint:gochecknoglobals // compile-time check

type Checkpointer struct {
	mu      sync.RWMutex
	history map[uuid.UUID][]*domain.Checkpoint
}

func NewCheckpointer() *Checkpointer {
	return &Checkpointer{history: make(map[uuid.UUID][]*domain.Checkpoint)}
}

func (c *Checkpointer) Get(_ context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := c.history[threadID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("memory.Checkpointer.Get: %w", domain.ErrNotFound)
	}

	latest := versions[len(versions)-1]
	t, err := domain.DecodeThread(latest.State, latest.Version)
	if err != nil {
		return nil, fmt.Errorf("memory.Checkpointer.Get: %w", err)
	}
	return t, nil
}

func (c *Checkpointer) Put(_ context.Context, t *domain.Thread) error {
	state, err := domain.EncodeThread(t)
	if err != nil {
		return fmt.Errorf("memory.Checkpointer.Put: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	versions := c.history[t.ID]
	current := 0
	if len(versions) > 0 {
		current = versions[len(versions)-1].Version
	}
	if current != t.Version {
		return fmt.Errorf("memory.Checkpointer.Put: stored version %d, have %d: %w", current, t.Version, domain.ErrConflict)
	}

	c.history[t.ID] = append(versions, &domain.Checkpoint{
		ThreadID:  t.ID,
		Version:   current + 1,
		State:     state,
		CreatedAt: time.Now().UTC(),
	})
	t.Version = current + 1
	return nil
}

func (c *Checkpointer) List(_ context.Context, threadID uuid.UUID) ([]*domain.Checkpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := c.history[threadID]
	out := make([]*domain.Checkpoint, len(versions))
	for i, cp := range versions {
		copied := *cp
		out[i] = &copied
	}
	return out, nil
}
