//go:build integration_test

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/desacikupa/umkmdesa/internal/admins"

	"github.com/brianvoe/gofakeit/v6"
)

func (s *IntegrationTestSuite) TestAdminManagement() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	superAdmin := s.superAdminClient(ctx)

	status, body := doJSON(ctx, s.T(), superAdmin, http.MethodGet, "/api/admin", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`[]`, string(body))

	email := gofakeit.Email()
	adminID, admin := s.newAdmin(ctx, superAdmin, email)

	// an ADMIN session is denied exactly like an anonymous one
	for _, client := range []*http.Client{admin, http.DefaultClient} {
		status, body = doJSON(ctx, s.T(), client, http.MethodGet, "/api/admin", nil)
		s.Equal(http.StatusUnauthorized, status)
		s.JSONEq(`{"error":"Unauthorized"}`, string(body))
	}

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodPost, "/api/admin", map[string]string{
		"email":    email,
		"password": "rahasia",
		"nama":     "Duplikat",
	})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Email sudah terdaftar"}`, string(body))

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodPost, "/api/admin", map[string]string{"email": "x@desa.id"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Semua field harus diisi"}`, string(body))

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodGet, "/api/admin", nil)
	s.Require().Equal(http.StatusOK, status)
	var list []admins.Admin
	s.Require().NoError(json.Unmarshal(body, &list))
	// super admins are not listed
	s.Require().Len(list, 1)
	s.Equal(adminID, list[0].ID)
	s.Equal(email, list[0].Email)
	s.NotContains(string(body), "password")

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodPut, "/api/admin/"+adminID, map[string]string{
		"email": superAdminEmail,
		"nama":  "Admin",
	})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Email sudah digunakan"}`, string(body))

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodPut, "/api/admin/"+adminID, map[string]string{"nama": "Admin"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Email dan nama harus diisi"}`, string(body))

	// an update without a password keeps the old one
	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodPut, "/api/admin/"+adminID, map[string]string{
		"email": email,
		"nama":  "Admin Desa",
	})
	s.Require().Equal(http.StatusOK, status, string(body))
	var updated admins.Admin
	s.Require().NoError(json.Unmarshal(body, &updated))
	s.Equal("Admin Desa", updated.Nama)
	s.login(ctx, newSessionClient(s.T()), email, "admin-"+email)

	status, _ = doJSON(ctx, s.T(), superAdmin, http.MethodPut, "/api/admin/"+adminID, map[string]string{
		"email":    email,
		"nama":     "Admin Desa",
		"password": "kata-sandi-baru",
	})
	s.Require().Equal(http.StatusOK, status)
	s.login(ctx, newSessionClient(s.T()), email, "kata-sandi-baru")

	status, _ = doJSON(ctx, s.T(), newSessionClient(s.T()), http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": "admin-" + email,
	})
	s.Equal(http.StatusUnauthorized, status)

	status, _ = doJSON(ctx, s.T(), superAdmin, http.MethodPut, "/api/admin/tidak-ada", map[string]string{
		"email": "baru@desa.id",
		"nama":  "Baru",
	})
	s.Equal(http.StatusNotFound, status)

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodDelete, "/api/admin/"+adminID, nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{"success":true}`, string(body))

	status, body = doJSON(ctx, s.T(), superAdmin, http.MethodDelete, "/api/admin/"+adminID, nil)
	s.Equal(http.StatusNotFound, status)
	s.JSONEq(`{"error":"Admin tidak ditemukan"}`, string(body))
}

func (s *IntegrationTestSuite) TestDashboardStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	status, _ := doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, "/api/admin/stats", nil)
	s.Equal(http.StatusUnauthorized, status)

	superAdmin := s.superAdminClient(ctx)
	status, body := doJSON(ctx, s.T(), superAdmin, http.MethodGet, "/api/admin/stats", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{"umkm":0,"kategori":0,"admin":0}`, string(body))

	_, admin := s.newAdmin(ctx, superAdmin, "statistik@desa.id")
	s.newAdmin(ctx, superAdmin, "statistik2@desa.id")
	kuliner := s.createCategory(ctx, admin, "Kuliner")
	s.createUMKM(ctx, admin, map[string]any{"namaUmkm": "Bakso Pak Joko", "kategoriIds": []string{kuliner.ID}})

	// any admin may read the stats
	status, body = doJSON(ctx, s.T(), admin, http.MethodGet, "/api/admin/stats", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{"umkm":1,"kategori":1,"admin":2}`, string(body))
}
