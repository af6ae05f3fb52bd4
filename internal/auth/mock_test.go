package auth_test

import (
	"context"
	"sync"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// mockUserRepo implements domain.UserRepository. Nil funcs fall back to the
// users recorded by Create.
type mockUserRepo struct {
	mu      sync.Mutex
	created []*domain.User

	createFunc     func(ctx context.Context, u *domain.User) error
	getByIDFunc    func(ctx context.Context, id int64) (*domain.User, error)
	getByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, u); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = int64(len(m.created) + 1)
	m.created = append(m.created, u)
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m *mockUserRepo) GetBySlackID(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (m *mockUserRepo) List(_ context.Context, _, _ int) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, nil
}

func (m *mockUserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.created {
		if match(u) {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

// mockAPIKeyRepo implements domain.APIKeyRepository.
type mockAPIKeyRepo struct {
	mu       sync.Mutex
	created  []*domain.APIKey
	touched  []int64
	deleted  [][2]int64
	createFn func(ctx context.Context, key *domain.APIKey) error

	getByPrefixFunc    func(ctx context.Context, prefix string) (*domain.APIKey, error)
	updateLastUsedFunc func(ctx context.Context, id int64) error
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key.ID = int64(len(m.created) + 1)
	m.created = append(m.created, key)
	return nil
}

func (m *mockAPIKeyRepo) GetByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error) {
	if m.getByPrefixFunc != nil {
		return m.getByPrefixFunc(ctx, prefix)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.created {
		if k.Prefix == prefix {
			return k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockAPIKeyRepo) ListByUser(_ context.Context, userID int64) ([]*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.APIKey
	for _, k := range m.created {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockAPIKeyRepo) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, [2]int64{userID, id})
	return nil
}

func (m *mockAPIKeyRepo) UpdateLastUsed(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.touched = append(m.touched, id)
	m.mu.Unlock()
	if m.updateLastUsedFunc != nil {
		return m.updateLastUsedFunc(ctx, id)
	}
	return nil
}
