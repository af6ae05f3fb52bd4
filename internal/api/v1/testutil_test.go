package v1_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/skillmatrix/internal/auth"
	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject user/role into context for the *Ctx helpers
// ---------------------------------------------------------------------------

func employeeCtx(userID int64) context.Context {
	return middleware.WithIdentity(context.Background(), userID, middleware.RoleEmployee)
}

func adminCtx(userID int64) context.Context {
	return middleware.WithIdentity(context.Background(), userID, middleware.RoleAdmin)
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	chats         domain.ChatRepository
	skills        domain.SkillRepository
	grades        domain.GradeRepository
	users         domain.UserRepository
	notifications domain.NotificationRepository
}

func (m *mockDataStore) Chats() domain.ChatRepository                 { return m.chats }
func (m *mockDataStore) Skills() domain.SkillRepository               { return m.skills }
func (m *mockDataStore) Grades() domain.GradeRepository               { return m.grades }
func (m *mockDataStore) Users() domain.UserRepository                 { return m.users }
func (m *mockDataStore) Notifications() domain.NotificationRepository { return m.notifications }

// ---------------------------------------------------------------------------
// Mock ChatRepository
// ---------------------------------------------------------------------------

type mockChatRepo struct {
	createFunc       func(ctx context.Context, c *domain.Chat) error
	getByIDFunc      func(ctx context.Context, id uuid.UUID) (*domain.Chat, error)
	listByUserFunc   func(ctx context.Context, userID int64, limit, offset int) ([]*domain.Chat, error)
	updateStatusFunc func(ctx context.Context, id uuid.UUID, status domain.ChatStatus) error
}

func (m *mockChatRepo) Create(ctx context.Context, c *domain.Chat) error {
	return m.createFunc(ctx, c)
}

func (m *mockChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockChatRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Chat, error) {
	return m.listByUserFunc(ctx, userID, limit, offset)
}

func (m *mockChatRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ChatStatus) error {
	return m.updateStatusFunc(ctx, id, status)
}

// chatRepoWith serves a single fixed chat and 404 for every other id.
func chatRepoWith(chat *domain.Chat) *mockChatRepo {
	return &mockChatRepo{
		getByIDFunc: func(_ context.Context, id uuid.UUID) (*domain.Chat, error) {
			if id != chat.ID {
				return nil, domain.ErrNotFound
			}
			c := *chat
			return &c, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Mock SkillRepository / GradeRepository
// ---------------------------------------------------------------------------

type mockSkillRepo struct {
	getByIDFunc func(ctx context.Context, id int64) (*domain.Skill, error)
	listFunc    func(ctx context.Context) ([]*domain.Skill, error)
}

func (m *mockSkillRepo) GetByID(ctx context.Context, id int64) (*domain.Skill, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockSkillRepo) List(ctx context.Context) ([]*domain.Skill, error) {
	return m.listFunc(ctx)
}

type mockGradeRepo struct {
	listFunc func(ctx context.Context) ([]domain.Grade, error)
}

func (m *mockGradeRepo) List(ctx context.Context) ([]domain.Grade, error) {
	return m.listFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock UserRepository
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	createFunc       func(ctx context.Context, u *domain.User) error
	getByIDFunc      func(ctx context.Context, id int64) (*domain.User, error)
	getByEmailFunc   func(ctx context.Context, email string) (*domain.User, error)
	getBySlackIDFunc func(ctx context.Context, slackID string) (*domain.User, error)
	listFunc         func(ctx context.Context, limit, offset int) ([]*domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.createFunc(ctx, u)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getByEmailFunc(ctx, email)
}

func (m *mockUserRepo) GetBySlackID(ctx context.Context, slackID string) (*domain.User, error) {
	return m.getBySlackIDFunc(ctx, slackID)
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	return m.listFunc(ctx, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock NotificationRepository
// ---------------------------------------------------------------------------

type mockNotificationRepo struct {
	createFunc        func(ctx context.Context, n *domain.Notification) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	getByThreadIDFunc func(ctx context.Context, platform, threadID string) (*domain.Notification, error)
	attachThreadFunc  func(ctx context.Context, id uuid.UUID, platform, threadID string) error
	listByStatusFunc  func(ctx context.Context, group string, status domain.NotificationStatus, limit int) ([]*domain.Notification, error)
	listExpiredFunc   func(ctx context.Context) ([]*domain.Notification, error)
	updateStatusFunc  func(ctx context.Context, id uuid.UUID, status domain.NotificationStatus) error
	resolveByChatFunc func(ctx context.Context, chatID uuid.UUID) error
	extendTimeoutFunc func(ctx context.Context, id uuid.UUID, timeoutAt time.Time) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return m.createFunc(ctx, n)
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockNotificationRepo) GetByThreadID(ctx context.Context, platform, threadID string) (*domain.Notification, error) {
	return m.getByThreadIDFunc(ctx, platform, threadID)
}

func (m *mockNotificationRepo) AttachThread(ctx context.Context, id uuid.UUID, platform, threadID string) error {
	return m.attachThreadFunc(ctx, id, platform, threadID)
}

func (m *mockNotificationRepo) ListByStatus(ctx context.Context, group string, status domain.NotificationStatus, limit int) ([]*domain.Notification, error) {
	return m.listByStatusFunc(ctx, group, status, limit)
}

func (m *mockNotificationRepo) ListExpired(ctx context.Context) ([]*domain.Notification, error) {
	return m.listExpiredFunc(ctx)
}

func (m *mockNotificationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.NotificationStatus) error {
	return m.updateStatusFunc(ctx, id, status)
}

func (m *mockNotificationRepo) ResolveByChat(ctx context.Context, chatID uuid.UUID) error {
	return m.resolveByChatFunc(ctx, chatID)
}

func (m *mockNotificationRepo) ExtendTimeout(ctx context.Context, id uuid.UUID, timeoutAt time.Time) error {
	return m.extendTimeoutFunc(ctx, id, timeoutAt)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	loginFunc          func(ctx context.Context, email, password string) (string, string, error)
	refreshTokenFunc   func(ctx context.Context, refreshToken string) (string, error)
	registerFunc       func(ctx context.Context, in auth.NewUser) (*domain.User, error)
	listUsersFunc      func(ctx context.Context, limit, offset int) ([]*domain.User, error)
	generateAPIKeyFunc func(ctx context.Context, userID int64, name string, ttl time.Duration) (string, *domain.APIKey, error)
	listAPIKeysFunc    func(ctx context.Context, userID int64) ([]*domain.APIKey, error)
	revokeAPIKeyFunc   func(ctx context.Context, userID, keyID int64) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.NewUser) (*domain.User, error) {
	return m.registerFunc(ctx, in)
}

func (m *mockAuthService) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	return m.listUsersFunc(ctx, limit, offset)
}

func (m *mockAuthService) GenerateAPIKey(ctx context.Context, userID int64, name string, ttl time.Duration) (string, *domain.APIKey, error) {
	return m.generateAPIKeyFunc(ctx, userID, name, ttl)
}

func (m *mockAuthService) ListAPIKeys(ctx context.Context, userID int64) ([]*domain.APIKey, error) {
	return m.listAPIKeysFunc(ctx, userID)
}

func (m *mockAuthService) RevokeAPIKey(ctx context.Context, userID, keyID int64) error {
	return m.revokeAPIKeyFunc(ctx, userID, keyID)
}

// ---------------------------------------------------------------------------
// Mock ChatService
// ---------------------------------------------------------------------------

type mockChatService struct {
	openChatFunc func(ctx context.Context, userID, skillID int64) (*domain.Chat, error)
	messagesFunc func(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error)
	sendFunc     func(ctx context.Context, chatID uuid.UUID, texts []string, emit conversation.EmitFunc) (*conversation.Outcome, error)
	resumeFunc   func(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue, emit conversation.EmitFunc) (*conversation.Outcome, error)
}

func (m *mockChatService) OpenChat(ctx context.Context, userID, skillID int64) (*domain.Chat, error) {
	return m.openChatFunc(ctx, userID, skillID)
}

func (m *mockChatService) Messages(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error) {
	return m.messagesFunc(ctx, chatID)
}

func (m *mockChatService) Send(ctx context.Context, chatID uuid.UUID, texts []string, emit conversation.EmitFunc) (*conversation.Outcome, error) {
	return m.sendFunc(ctx, chatID, texts, emit)
}

func (m *mockChatService) Resume(ctx context.Context, chatID uuid.UUID, value domain.ResumeValue, emit conversation.EmitFunc) (*conversation.Outcome, error) {
	return m.resumeFunc(ctx, chatID, value, emit)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func fixtureChat(userID int64, status domain.ChatStatus) *domain.Chat {
	now := time.Now().UTC()
	return &domain.Chat{
		ID:            uuid.New(),
		UserID:        userID,
		SkillID:       11,
		Status:        status,
		TimespanStart: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
