package admins

import (
	"context"
	"fmt"

	"github.com/desacikupa/umkmdesa/internal/auth"
)

type Stats struct {
	UMKM     int `json:"umkm"`
	Kategori int `json:"kategori"`
	Admin    int `json:"admin"`
}

type counter interface {
	Count(ctx context.Context) (int, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context, role auth.Role) (int, error)
}

// StatsService gathers the dashboard totals.
type StatsService struct {
	umkm       counter
	categories counter
	users      roleCounter
}

func NewStatsService(umkm, categories counter, users roleCounter) *StatsService {
	return &StatsService{
		umkm:       umkm,
		categories: categories,
		users:      users,
	}
}

// Get counts businesses, categories and accounts with the ADMIN role.
func (s *StatsService) Get(ctx context.Context) (*Stats, error) {
	umkmCount, err := s.umkm.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count umkm: %w", err)
	}
	categoryCount, err := s.categories.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	adminCount, err := s.users.CountByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("count admins: %w", err)
	}

	return &Stats{
		UMKM:     umkmCount,
		Kategori: categoryCount,
		Admin:    adminCount,
	}, nil
}
