//go:build integration_test

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/desacikupa/umkmdesa/internal/auth"
)

func (s *IntegrationTestSuite) TestLogin() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, tc := range []struct {
		name           string
		body           map[string]string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "missing password",
			body:           map[string]string{"email": superAdminEmail},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Email dan password harus diisi",
		},
		{
			name:           "missing email",
			body:           map[string]string{"password": superAdminPassword},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Email dan password harus diisi",
		},
		{
			name:           "wrong password",
			body:           map[string]string{"email": superAdminEmail, "password": "salah"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Email atau password salah",
		},
		{
			name:           "unknown email",
			body:           map[string]string{"email": "nobody@desa.id", "password": superAdminPassword},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Email atau password salah",
		},
		{
			name:           "email is case sensitive",
			body:           map[string]string{"email": "SUPER@desa.id", "password": superAdminPassword},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Email atau password salah",
		},
	} {
		s.Run(tc.name, func() {
			client := newSessionClient(s.T())
			status, body := doJSON(ctx, s.T(), client, http.MethodPost, "/api/auth/login", tc.body)
			s.Equal(tc.expectedStatus, status)
			s.JSONEq(`{"error":"`+tc.expectedError+`"}`, string(body))
			s.Nil(sessionCookie(client))
		})
	}

	client := newSessionClient(s.T())
	status, body := doJSON(ctx, s.T(), client, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    superAdminEmail,
		"password": superAdminPassword,
	})
	s.Require().Equal(http.StatusOK, status)

	var loginResp struct {
		User auth.SessionUser `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(body, &loginResp))
	s.Equal(superAdminEmail, loginResp.User.Email)
	s.Equal(auth.RoleSuperAdmin, loginResp.User.Role)
	s.NotEmpty(loginResp.User.ID)
	s.NotContains(string(body), "password")
	s.NotNil(sessionCookie(client))
}

func (s *IntegrationTestSuite) TestSessionLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := newSessionClient(s.T())
	status, _ := doJSON(ctx, s.T(), client, http.MethodGet, "/api/auth/me", nil)
	s.Equal(http.StatusUnauthorized, status)

	s.login(ctx, client, superAdminEmail, superAdminPassword)

	status, body := doJSON(ctx, s.T(), client, http.MethodGet, "/api/auth/me", nil)
	s.Require().Equal(http.StatusOK, status)
	var meResp struct {
		User auth.SessionUser `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(body, &meResp))
	s.Equal(superAdminEmail, meResp.User.Email)
	s.Equal("Super Admin", meResp.User.Nama)

	status, body = doJSON(ctx, s.T(), client, http.MethodPost, "/api/auth/logout", nil)
	s.Equal(http.StatusOK, status)
	s.JSONEq(`{"success":true}`, string(body))
	s.Nil(sessionCookie(client))

	status, body = doJSON(ctx, s.T(), client, http.MethodGet, "/api/auth/me", nil)
	s.Equal(http.StatusUnauthorized, status)
	s.JSONEq(`{"error":"Unauthorized"}`, string(body))
}

func (s *IntegrationTestSuite) TestTamperedCookieIsAnonymous() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := s.superAdminClient(ctx)
	token := sessionCookie(client).Value

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverEndpoint+"/api/auth/me", nil)
	s.Require().NoError(err)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token + "x"})

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestDeletedAdminLosesSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	superAdmin := s.superAdminClient(ctx)
	adminID, admin := s.newAdmin(ctx, superAdmin, "hapus@desa.id")

	status, _ := doJSON(ctx, s.T(), admin, http.MethodGet, "/api/auth/me", nil)
	s.Require().Equal(http.StatusOK, status)

	status, _ = doJSON(ctx, s.T(), superAdmin, http.MethodDelete, "/api/admin/"+adminID, nil)
	s.Require().Equal(http.StatusOK, status)

	// the token is still valid, but the user behind it is gone
	status, _ = doJSON(ctx, s.T(), admin, http.MethodGet, "/api/auth/me", nil)
	s.Equal(http.StatusUnauthorized, status)
	status, _ = doJSON(ctx, s.T(), admin, http.MethodPost, "/api/kategori", map[string]string{"nama": "Kuliner"})
	s.Equal(http.StatusUnauthorized, status)
}
