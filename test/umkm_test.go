//go:build integration_test

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/desacikupa/umkmdesa/internal/umkm"

	"github.com/brianvoe/gofakeit/v6"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

func (s *IntegrationTestSuite) createUMKM(ctx context.Context, client *http.Client, body map[string]any) *umkm.Business {
	status, respBody := doJSON(ctx, s.T(), client, http.MethodPost, "/api/umkm", body)
	s.Require().Equal(http.StatusCreated, status, string(respBody))
	var created umkm.Business
	s.Require().NoError(json.Unmarshal(respBody, &created))
	return &created
}

func (s *IntegrationTestSuite) listUMKM(ctx context.Context, query url.Values) []*umkm.Business {
	path := "/api/umkm"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	status, body := doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, status)
	var businesses []*umkm.Business
	s.Require().NoError(json.Unmarshal(body, &businesses))
	return businesses
}

func (s *IntegrationTestSuite) uploadImage(ctx context.Context, client *http.Client, umkmID, filename string, content []byte) (int, []byte) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	s.Require().NoError(err)
	_, err = part.Write(content)
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverEndpoint+"/api/umkm/"+umkmID+"/gambar", &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, body
}

func (s *IntegrationTestSuite) TestUMKMCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, admin := s.newAdmin(ctx, s.superAdminClient(ctx), "katalog@desa.id")
	kuliner := s.createCategory(ctx, admin, "Kuliner")
	kerajinan := s.createCategory(ctx, admin, "Kerajinan")

	status, body := doJSON(ctx, s.T(), http.DefaultClient, http.MethodPost, "/api/umkm", map[string]any{"namaUmkm": "Anonim"})
	s.Equal(http.StatusUnauthorized, status)
	s.JSONEq(`{"error":"Unauthorized"}`, string(body))

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/umkm", map[string]any{"deskripsi": "tanpa nama"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Nama UMKM harus diisi"}`, string(body))

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/umkm", map[string]any{
		"namaUmkm":    "Salah Kategori",
		"kategoriIds": []string{"tidak-ada"},
	})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"Kategori tidak ditemukan"}`, string(body))

	warung := s.createUMKM(ctx, admin, map[string]any{
		"namaUmkm":       "Warung Bu Siti",
		"deskripsi":      "Nasi uduk dan gorengan",
		"alamatFisik":    gofakeit.Street(),
		"kontakWhatsapp": "",
		"kategoriIds":    []string{kuliner.ID},
	})
	s.NotEmpty(warung.ID)
	s.Require().NotNil(warung.Deskripsi)
	s.Equal("Nasi uduk dan gorengan", *warung.Deskripsi)
	s.Nil(warung.KontakWhatsapp)
	s.Nil(warung.URLGoogleMaps)
	s.Require().Len(warung.Kategori, 1)
	s.Equal(kuliner.ID, warung.Kategori[0].ID)
	s.Empty(warung.Gambar)

	anyaman := s.createUMKM(ctx, admin, map[string]any{
		"namaUmkm":    "Anyaman 100% Bambu",
		"kategoriIds": []string{kerajinan.ID, kuliner.ID},
	})

	all := s.listUMKM(ctx, nil)
	s.Require().Len(all, 2)
	// newest first
	s.Equal(anyaman.ID, all[0].ID)
	s.Equal(warung.ID, all[1].ID)

	byCategory := s.listUMKM(ctx, url.Values{"kategori": {kerajinan.ID}})
	s.Require().Len(byCategory, 1)
	s.Equal(anyaman.ID, byCategory[0].ID)
	s.Len(byCategory[0].Kategori, 2)

	bySearch := s.listUMKM(ctx, url.Values{"search": {"WARUNG"}})
	s.Require().Len(bySearch, 1)
	s.Equal(warung.ID, bySearch[0].ID)

	// LIKE wildcards in the search text match literally
	bySearch = s.listUMKM(ctx, url.Values{"search": {"100%"}})
	s.Require().Len(bySearch, 1)
	s.Equal(anyaman.ID, bySearch[0].ID)
	s.Empty(s.listUMKM(ctx, url.Values{"search": {"Warung_Bu"}}))

	s.Empty(s.listUMKM(ctx, url.Values{"kategori": {kerajinan.ID}, "search": {"warung"}}))

	status, body = doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, "/api/umkm/"+warung.ID, nil)
	s.Require().Equal(http.StatusOK, status)
	var fetched umkm.Business
	s.Require().NoError(json.Unmarshal(body, &fetched))
	s.Equal("Warung Bu Siti", fetched.NamaUMKM)

	status, body = doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, "/api/umkm/tidak-ada", nil)
	s.Equal(http.StatusNotFound, status)
	s.JSONEq(`{"error":"UMKM not found"}`, string(body))

	// update replaces the category set and clears emptied fields
	status, body = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/umkm/"+warung.ID, map[string]any{
		"namaUmkm":    "Warung Bu Siti Baru",
		"deskripsi":   "",
		"kategoriIds": []string{kerajinan.ID},
	})
	s.Require().Equal(http.StatusOK, status, string(body))
	var updated umkm.Business
	s.Require().NoError(json.Unmarshal(body, &updated))
	s.Equal("Warung Bu Siti Baru", updated.NamaUMKM)
	s.Nil(updated.Deskripsi)
	s.Require().Len(updated.Kategori, 1)
	s.Equal(kerajinan.ID, updated.Kategori[0].ID)
	s.True(updated.UpdatedAt.After(warung.UpdatedAt) || updated.UpdatedAt.Equal(warung.UpdatedAt))

	s.Empty(s.listUMKM(ctx, url.Values{"kategori": {kuliner.ID}, "search": {"warung"}}))

	status, _ = doJSON(ctx, s.T(), admin, http.MethodPut, "/api/umkm/tidak-ada", map[string]any{"namaUmkm": "X"})
	s.Equal(http.StatusNotFound, status)

	status, body = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+anyaman.ID, nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{"success":true}`, string(body))
	s.Len(s.listUMKM(ctx, nil), 1)

	status, _ = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+anyaman.ID, nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *IntegrationTestSuite) TestUMKMImages() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, admin := s.newAdmin(ctx, s.superAdminClient(ctx), "gambar@desa.id")
	business := s.createUMKM(ctx, admin, map[string]any{"namaUmkm": "Kopi Gunung"})

	status, body := s.uploadImage(ctx, http.DefaultClient, business.ID, "kopi.png", []byte(pngSignature))
	s.Equal(http.StatusUnauthorized, status)

	status, body = s.uploadImage(ctx, admin, "tidak-ada", "kopi.png", []byte(pngSignature))
	s.Equal(http.StatusNotFound, status)
	s.JSONEq(`{"error":"UMKM not found"}`, string(body))

	status, body = s.uploadImage(ctx, admin, business.ID, "kopi.png", bytes.Repeat([]byte("a"), 1<<20+32<<10))
	s.Equal(http.StatusRequestEntityTooLarge, status, string(body))

	status, body = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/umkm/"+business.ID+"/gambar", map[string]string{"file": "x"})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"No file provided"}`, string(body))

	status, body = s.uploadImage(ctx, admin, business.ID, "halaman.html", []byte("<html><script>fetch('/api/admin')</script></html>"))
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"File harus berupa gambar (JPEG, PNG, GIF atau WebP)"}`, string(body))

	status, body = s.uploadImage(ctx, admin, business.ID, "Biji Kopi.png", []byte(pngSignature+"first image"))
	s.Require().Equal(http.StatusCreated, status, string(body))
	var first umkm.Image
	s.Require().NoError(json.Unmarshal(body, &first))
	s.Equal(business.ID, first.UMKMID)
	s.Contains(first.URL, serverEndpoint+"/files/umkm/"+business.ID+"/")

	status, body = s.uploadImage(ctx, admin, business.ID, "gelas.png", []byte(pngSignature+"second image"))
	s.Require().Equal(http.StatusCreated, status, string(body))
	var second umkm.Image
	s.Require().NoError(json.Unmarshal(body, &second))

	// the uploaded object is publicly served
	status, body = doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, second.URL[len(serverEndpoint):], nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(pngSignature+"second image", string(body))

	list := s.listUMKM(ctx, nil)
	s.Require().Len(list, 1)
	s.Require().Len(list[0].Gambar, 1)
	s.Equal(second.ID, list[0].Gambar[0].ID)

	status, body = doJSON(ctx, s.T(), http.DefaultClient, http.MethodGet, "/api/umkm/"+business.ID, nil)
	s.Require().Equal(http.StatusOK, status)
	var full umkm.Business
	s.Require().NoError(json.Unmarshal(body, &full))
	s.Len(full.Gambar, 2)

	status, body = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+business.ID+"/gambar", map[string]string{"url": first.URL})
	s.Equal(http.StatusBadRequest, status)
	s.JSONEq(`{"error":"gambarId harus diisi"}`, string(body))

	// the stored url wins over the one sent by the client
	status, body = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+business.ID+"/gambar", map[string]string{
		"gambarId": first.ID,
		"url":      second.URL,
	})
	s.Require().Equal(http.StatusOK, status, string(body))
	s.JSONEq(`{"success":true}`, string(body))
	s.NoFileExists(s.imagePath(first.URL))
	s.FileExists(s.imagePath(second.URL))

	status, _ = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+business.ID+"/gambar", map[string]string{"gambarId": first.ID})
	s.Equal(http.StatusNotFound, status)

	// deleting the UMKM removes its image rows and stored objects
	status, _ = doJSON(ctx, s.T(), admin, http.MethodDelete, "/api/umkm/"+business.ID, nil)
	s.Require().Equal(http.StatusOK, status)

	var images int
	s.Require().NoError(s.dbPool.QueryRow(ctx, `SELECT COUNT(*) FROM gambar_umkm`).Scan(&images))
	s.Zero(images)
	_, err := os.Stat(s.imagePath(second.URL))
	s.True(os.IsNotExist(err))
}
