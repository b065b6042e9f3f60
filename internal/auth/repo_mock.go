package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepoMock is an in-memory user store, used in tests across packages.
type RepoMock struct {
	mu    sync.Mutex
	users map[string]*User
	// when set, every method fails with it
	Err error
}

func NewMockRepo() *RepoMock {
	return &RepoMock{
		users: make(map[string]*User),
	}
}

func (r *RepoMock) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *RepoMock) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *RepoMock) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *RepoMock) Update(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	for id, u := range r.users {
		if id != user.ID && u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	cp := *user
	cp.CreatedAt = existing.CreatedAt
	r.users[user.ID] = &cp
	return nil
}

func (r *RepoMock) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *RepoMock) ListByRole(_ context.Context, role Role) ([]*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var users []*User
	for _, u := range r.users {
		if u.Role == role {
			cp := *u
			users = append(users, &cp)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *RepoMock) CountByRole(ctx context.Context, role Role) (int, error) {
	users, err := r.ListByRole(ctx, role)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (r *RepoMock) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	for id, u := range r.users {
		if id != excludeID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}
