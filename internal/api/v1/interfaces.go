package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/skillmatrix/internal/auth"
	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Chats() domain.ChatRepository
	Skills() domain.SkillRepository
	Grades() domain.GradeRepository
	Users() domain.UserRepository
	Notifications() domain.NotificationRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	Register(ctx context.Context, in auth.NewUser) (*domain.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error)
	GenerateAPIKey(ctx context.Context, userID int64, name string, ttl time.Duration) (string, *domain.APIKey, error)
	ListAPIKeys(ctx context.Context, userID int64) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, keyID int64) error
}

// ChatService abstracts the conversation lifecycle for handler testing.
// *conversation.Orchestrator satisfies this interface.
type ChatService interface {
	OpenChat(ctx context.Context, userID, skillID int64) (*domain.Chat, error)
	Messages(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error)
	Send(ctx context.Context, chatID uuid.UUID, texts []string, emit conversation.EmitFunc) (*conversation.Outcome, error)
	Resume(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue, emit conversation.EmitFunc) (*conversation.Outcome, error)
}
