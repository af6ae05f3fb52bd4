package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/skillmatrix/internal/domain"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool          *pgxpool.Pool
	users         *UserRepo
	apiKeys       *APIKeyRepo
	skills        *SkillRepo
	userSkills    *UserSkillRepo
	grades        *GradeRepo
	chats         *ChatRepo
	notifications *NotificationRepo
	checkpoints   *CheckpointRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:          pool,
		users:         NewUserRepo(pool),
		apiKeys:       NewAPIKeyRepo(pool),
		skills:        NewSkillRepo(pool),
		userSkills:    NewUserSkillRepo(pool),
		grades:        NewGradeRepo(pool),
		chats:         NewChatRepo(pool),
		notifications: NewNotificationRepo(pool),
		checkpoints:   NewCheckpointRepo(pool),
	}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Users() domain.UserRepository                 { return s.users }
func (s *Store) APIKeys() domain.APIKeyRepository             { return s.apiKeys }
func (s *Store) Skills() domain.SkillRepository               { return s.skills }
func (s *Store) UserSkills() domain.UserSkillRepository       { return s.userSkills }
func (s *Store) Grades() domain.GradeRepository               { return s.grades }
func (s *Store) Chats() domain.ChatRepository                 { return s.chats }
func (s *Store) Notifications() domain.NotificationRepository { return s.notifications }
func (s *Store) Checkpoints() domain.Checkpointer              { return s.checkpoints }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
