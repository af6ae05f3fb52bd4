package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChatStatus string

const (
	ChatStatusInProgress ChatStatus = "IN_PROGRESS"
	ChatStatusBlocked    ChatStatus = "BLOCKED"
	ChatStatusCompleted  ChatStatus = "COMPLETED"
)

// ValidTransition reports whether a chat may move from s to the given status.
// Allowed: in_progress->blocked, in_progress->completed, blocked->in_progress, blocked->completed.
func (s ChatStatus) ValidTransition(to ChatStatus) bool {
	switch s {
	case ChatStatusInProgress:
		return to == ChatStatusBlocked || to == ChatStatusCompleted
	case ChatStatusBlocked:
		return to == ChatStatusInProgress || to == ChatStatusCompleted
	default:
		return false
	}
}

// Chat is a skill self-assessment conversation. Its ID doubles as the
// conversation thread ID in the checkpoint store.
type Chat struct {
	ID            uuid.UUID  `json:"id"`
	UserID        int64      `json:"user_id"`
	SkillID       int64      `json:"skill_id"`
	Status        ChatStatus `json:"status"`
	TimespanStart time.Time  `json:"timespan_start"`
	TimespanEnd   *time.Time `json:"timespan_end,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ChatRepository interface {
	Create(ctx context.Context, c *Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*Chat, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Chat, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ChatStatus) error
}
