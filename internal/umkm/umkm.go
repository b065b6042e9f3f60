package umkm

import (
	"errors"
	"time"

	"github.com/desacikupa/umkmdesa/internal/category"
)

var (
	ErrUMKMNotFound    = errors.New("umkm not found")
	ErrImageNotFound   = errors.New("image not found")
	ErrUnknownCategory = errors.New("unknown category")
)

// Business is a single UMKM listing of the village directory.
type Business struct {
	ID             string              `json:"id"`
	NamaUMKM       string              `json:"namaUmkm"`
	Deskripsi      *string             `json:"deskripsi"`
	AlamatFisik    *string             `json:"alamatFisik"`
	URLGoogleMaps  *string             `json:"urlGoogleMaps"`
	KontakWhatsapp *string             `json:"kontakWhatsapp"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	Kategori       []category.Category `json:"kategori"`
	Gambar         []*Image            `json:"gambar"`
}

type Image struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	UMKMID    string    `json:"umkmId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Fields are the editable attributes of a Business. Nil optional fields are stored as NULL.
type Fields struct {
	NamaUMKM       string
	Deskripsi      *string
	AlamatFisik    *string
	URLGoogleMaps  *string
	KontakWhatsapp *string
	KategoriIDs    []string
}

type ListFilter struct {
	KategoriID string
	Search     string
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
