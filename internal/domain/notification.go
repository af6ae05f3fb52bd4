package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeInterrupt NotificationType = "INTERRUPT"
	NotificationTypeCompleted NotificationType = "COMPLETED"
)

type NotificationStatus string

const (
	NotificationStatusUnread   NotificationStatus = "UNREAD"
	NotificationStatusRead     NotificationStatus = "READ"
	NotificationStatusResolved NotificationStatus = "RESOLVED"
)

const (
	UserGroupAdmin = "ADMIN"
	UserGroupUser  = "USER"
)

// Notification records that someone must look at a chat. Interrupt
// notifications are optionally mirrored into a messenger thread so an
// administrator can answer from there.
type Notification struct {
	ID                uuid.UUID          `json:"id"`
	Type              NotificationType   `json:"notification_type"`
	ChatID            uuid.UUID          `json:"chat_id"`
	Status            NotificationStatus `json:"status"`
	UserGroup         string             `json:"user_group"`
	Message           string             `json:"message"`
	MessengerPlatform string             `json:"messenger_platform,omitempty"`
	MessengerThreadID string             `json:"messenger_thread_id,omitempty"`
	TimeoutAt         *time.Time         `json:"timeout_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	GetByThreadID(ctx context.Context, platform, threadID string) (*Notification, error)
	AttachThread(ctx context.Context, id uuid.UUID, platform, threadID string) error
	ListByStatus(ctx context.Context, group string, status NotificationStatus, limit int) ([]*Notification, error)
	ListExpired(ctx context.Context) ([]*Notification, error) // unresolved interrupts past timeout_at
	UpdateStatus(ctx context.Context, id uuid.UUID, status NotificationStatus) error
	ResolveByChat(ctx context.Context, chatID uuid.UUID) error
	ExtendTimeout(ctx context.Context, id uuid.UUID, timeoutAt time.Time) error
}
