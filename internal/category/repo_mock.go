package category

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepoMock is an in-memory category store, used in tests across packages.
type RepoMock struct {
	mu         sync.Mutex
	categories map[string]*WithCount
	listCalls  int
	// when set, every method fails with it
	Err error
}

func NewMockRepo() *RepoMock {
	return &RepoMock{
		categories: make(map[string]*WithCount),
	}
}

func (r *RepoMock) List(context.Context) ([]*WithCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.Err != nil {
		return nil, r.Err
	}
	list := make([]*WithCount, 0, len(r.categories))
	for _, c := range r.categories {
		cp := *c
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Nama < list[j].Nama })
	return list, nil
}

func (r *RepoMock) Create(_ context.Context, nama string) (*Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, c := range r.categories {
		if c.Nama == nama {
			return nil, ErrCategoryExists
		}
	}
	c := &WithCount{Category: Category{ID: uuid.NewString(), Nama: nama, CreatedAt: time.Now()}}
	r.categories[c.ID] = c
	cat := c.Category
	return &cat, nil
}

func (r *RepoMock) Update(_ context.Context, id, nama string) (*Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	c, ok := r.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	c.Nama = nama
	cat := c.Category
	return &cat, nil
}

func (r *RepoMock) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(r.categories, id)
	return nil
}

func (r *RepoMock) NameTaken(_ context.Context, nama, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	for id, c := range r.categories {
		if id != excludeID && c.Nama == nama {
			return true, nil
		}
	}
	return false, nil
}

func (r *RepoMock) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	return len(r.categories), nil
}
