//go:build integration_test

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/desacikupa/umkmdesa/internal/category"
)

func (s *IntegrationTestSuite) listCategories(ctx context.Context) []category.WithCount {
	status, body := doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, "/api/kategori", nil)
	s.Require().Equal(http.StatusOK, status)
	var categories []category.WithCount
	s.Require().NoError(json.Unmarshal(body, &categories))
	return categories
}

func (s *IntegrationTestSuite) createCategory(ctx context.Context, client *http.Client, nama string) category.Category {
	status, body := doJSON(ctx, s.T(), client, http.MethodPost, "/api/kategori", map[string]string{"nama": nama})
	s.Require().Equal(http.StatusCreated, status, string(body))
	var created category.Category
	s.Require().NoError(json.Unmarshal(body, &created))
	return created
}

func (s *IntegrationTestSuite) TestCategoryCRUD() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	s.Empty(s.listCategories(ctx))

	// anonymous clients can read, but not write
	status, body := doJSON(ctx, s.T(), http.DefaultClient, http.MethodPost, "/api/kategori", map[string]string{"nama": "Kuliner"})
	s.Equal(http.StatusUnauthorized, status)
	s.JSONEq(`{"error":"Unauthorized"}`, string(body))

	_, admin := s.newAdmin(ctx, s.superAdminClient(ctx), "kategori@desa.id")

	kuliner := s.createCategory(ctx, admin, "Kuliner")
	s.NotEmpty(kuliner.ID)
	s.Equal("Kuliner", kuliner.Nama)
	kerajinan := s.createCategory(ctx, admin, "Kerajinan")

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/kategori", map[string]string{"nama": "Kuliner"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Kategori sudah ada"}`, string(body))

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/kategori", map[string]string{"nama": "  "})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Nama kategori harus diisi"}`, string(body))

	categories := s.listCategories(ctx)
	s.Require().Len(categories, 2)
	// ordered by name
	s.Equal("Kerajinan", categories[0].Nama)
	s.Equal("Kuliner", categories[1].Nama)
	s.Zero(categories[0].Count.UMKM)

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/umkm", map[string]any{
		"namaUmkm":    "Warung Bu Siti",
		"kategoriIds": []string{kuliner.ID},
	})
	s.Require().Equal(http.StatusCreated, status, string(body))

	for _, c := range s.listCategories(ctx) {
		if c.ID == kuliner.ID {
			s.Equal(1, c.Count.UMKM)
		} else {
			s.Zero(c.Count.UMKM)
		}
	}

	// renaming to its own name is fine, to another category's name is not
	status, _ = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/kategori/"+kerajinan.ID, map[string]string{"nama": "Kerajinan"})
	s.Equal(http.StatusOK, status)
	status, body = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/kategori/"+kerajinan.ID, map[string]string{"nama": "Kuliner"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Kategori sudah ada"}`, string(body))

	status, body = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/kategori/"+kerajinan.ID, map[string]string{"nama": "Kerajinan Tangan"})
	s.Require().Equal(http.StatusOK, status)
	var updated category.Category
	s.Require().NoError(json.Unmarshal(body, &updated))
	s.Equal("Kerajinan Tangan", updated.Nama)

	status, _ = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/kategori/00000000-0000-0000-0000-000000000000", map[string]string{"nama": "X"})
	s.Equal(http.StatusNotFound, status)

	// deleting a category unlinks it from its UMKM
	status, body = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/kategori/"+kuliner.ID, nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{"success":true}`, string(body))

	categories = s.listCategories(ctx)
	s.Require().Len(categories, 1)
	s.Equal(kerajinan.ID, categories[0].ID)

	var links int
	s.Require().NoError(s.dbPool.QueryRow(ctx, `SELECT COUNT(*) FROM umkm_kategori`).Scan(&links))
	s.Zero(links)

	status, _ = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/kategori/"+kuliner.ID, nil)
	s.Equal(http.StatusNotFound, status)
}
