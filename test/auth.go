//go:build integration_test

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/desacikupa/umkmdesa/internal/auth"

	"github.com/stretchr/testify/require"
)

// newSessionClient returns a client that keeps the auth-token cookie between requests.
func newSessionClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func sessionCookie(client *http.Client) *http.Cookie {
	endpoint, _ := url.Parse(serverEndpoint)
	for _, c := range client.Jar.Cookies(endpoint) {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func doJSON(
	ctx context.Context,
	t *testing.T,
	client *http.Client,
	method, path string,
	body any,
) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func (s *IntegrationTestSuite) login(ctx context.Context, client *http.Client, email, password string) {
	status, body := doJSON(ctx, s.T(), client, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	s.Require().Equal(http.StatusOK, status, "login as %s: %s", email, body)
	s.Require().NotNil(sessionCookie(client))
}

func (s *IntegrationTestSuite) superAdminClient(ctx context.Context) *http.Client {
	client := newSessionClient(s.T())
	s.login(ctx, client, superAdminEmail, superAdminPassword)
	return client
}

// newAdmin creates an ADMIN account through the API and returns a client logged in as it.
func (s *IntegrationTestSuite) newAdmin(ctx context.Context, superAdmin *http.Client, email string) (string, *http.Client) {
	password := "admin-" + email
	status, body := doJSON(ctx, s.T(), superAdmin, http.MethodPost, "/api/admin", map[string]string{
		"email":    email,
		"password": password,
		"nama":     fmt.Sprintf("Admin %s", email),
	})
	s.Require().Equal(http.StatusCreated, status, string(body))

	var created struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(body, &created))

	client := newSessionClient(s.T())
	s.login(ctx, client, email, password)
	return created.ID, client
}
