package umkm

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/desacikupa/umkmdesa/internal/category"

	"github.com/google/uuid"
)

// RepoMock is an in-memory UMKM store, used in tests across packages.
type RepoMock struct {
	mu         sync.Mutex
	businesses map[string]*Business
	categories map[string]category.Category
	clock      time.Time
	// when set, every method fails with it
	Err error
}

func NewMockRepo() *RepoMock {
	return &RepoMock{
		businesses: make(map[string]*Business),
		categories: make(map[string]category.Category),
		clock:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddCategory makes a category known to the mock so businesses can reference it.
func (r *RepoMock) AddCategory(nama string) category.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := category.Category{ID: uuid.NewString(), Nama: nama, CreatedAt: r.tick()}
	r.categories[c.ID] = c
	return c
}

// tick returns strictly increasing timestamps so ordering by creation is stable.
func (r *RepoMock) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *RepoMock) List(_ context.Context, filter ListFilter) ([]*Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	list := make([]*Business, 0)
	for _, b := range r.businesses {
		if filter.KategoriID != "" && !hasCategory(b, filter.KategoriID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(b.NamaUMKM), strings.ToLower(filter.Search)) {
			continue
		}
		cp := copyBusiness(b)
		if len(cp.Gambar) > 1 {
			cp.Gambar = cp.Gambar[:1]
		}
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *RepoMock) Get(_ context.Context, id string) (*Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrUMKMNotFound
	}
	return copyBusiness(b), nil
}

func (r *RepoMock) Create(_ context.Context, fields Fields) (*Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	kategori, err := r.resolveCategories(fields.KategoriIDs)
	if err != nil {
		return nil, err
	}
	now := r.tick()
	b := &Business{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Gambar:    []*Image{},
	}
	applyFields(b, fields, kategori)
	r.businesses[b.ID] = b
	return copyBusiness(b), nil
}

func (r *RepoMock) Update(_ context.Context, id string, fields Fields) (*Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrUMKMNotFound
	}
	kategori, err := r.resolveCategories(fields.KategoriIDs)
	if err != nil {
		return nil, err
	}
	applyFields(b, fields, kategori)
	b.UpdatedAt = r.tick()
	return copyBusiness(b), nil
}

func (r *RepoMock) Delete(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrUMKMNotFound
	}
	urls := make([]string, 0, len(b.Gambar))
	for _, img := range b.Gambar {
		urls = append(urls, img.URL)
	}
	delete(r.businesses, id)
	return urls, nil
}

func (r *RepoMock) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	_, ok := r.businesses[id]
	return ok, nil
}

func (r *RepoMock) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	return len(r.businesses), nil
}

func (r *RepoMock) AddImage(_ context.Context, umkmID, url string) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.businesses[umkmID]
	if !ok {
		return nil, ErrUMKMNotFound
	}
	img := &Image{ID: uuid.NewString(), URL: url, UMKMID: umkmID, CreatedAt: r.tick()}
	// newest first, as the db returns them
	b.Gambar = append([]*Image{img}, b.Gambar...)
	cp := *img
	return &cp, nil
}

func (r *RepoMock) GetImage(_ context.Context, umkmID, imageID string) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	b, ok := r.businesses[umkmID]
	if !ok {
		return nil, ErrImageNotFound
	}
	for _, img := range b.Gambar {
		if img.ID == imageID {
			cp := *img
			return &cp, nil
		}
	}
	return nil, ErrImageNotFound
}

func (r *RepoMock) DeleteImage(_ context.Context, umkmID, imageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	b, ok := r.businesses[umkmID]
	if !ok {
		return ErrImageNotFound
	}
	for i, img := range b.Gambar {
		if img.ID == imageID {
			b.Gambar = append(b.Gambar[:i], b.Gambar[i+1:]...)
			return nil
		}
	}
	return ErrImageNotFound
}

func (r *RepoMock) resolveCategories(ids []string) ([]category.Category, error) {
	kategori := make([]category.Category, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		c, ok := r.categories[id]
		if !ok {
			return nil, ErrUnknownCategory
		}
		kategori = append(kategori, c)
	}
	sort.Slice(kategori, func(i, j int) bool { return kategori[i].Nama < kategori[j].Nama })
	return kategori, nil
}

func applyFields(b *Business, fields Fields, kategori []category.Category) {
	b.NamaUMKM = fields.NamaUMKM
	b.Deskripsi = fields.Deskripsi
	b.AlamatFisik = fields.AlamatFisik
	b.URLGoogleMaps = fields.URLGoogleMaps
	b.KontakWhatsapp = fields.KontakWhatsapp
	b.Kategori = kategori
}

func hasCategory(b *Business, kategoriID string) bool {
	for _, c := range b.Kategori {
		if c.ID == kategoriID {
			return true
		}
	}
	return false
}

func copyBusiness(b *Business) *Business {
	cp := *b
	cp.Kategori = append([]category.Category{}, b.Kategori...)
	cp.Gambar = make([]*Image, 0, len(b.Gambar))
	for _, img := range b.Gambar {
		imgCp := *img
		cp.Gambar = append(cp.Gambar, &imgCp)
	}
	return &cp
}
