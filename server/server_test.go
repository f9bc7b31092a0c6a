package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-client/server"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	table  *users.CredentialTable
	minter *token.Minter
	server *server.Server
	http   *httptest.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	table := users.DemoCredentials()
	require.NoError(t, table.Add(users.Credential{
		Username: "admin@demo.com",
		Password: "admin123",
		Roles:    []string{"user", "admin"},
	}))

	minter := token.NewMinter(token.NewHMACSigner("shared-secret"))
	srv := server.New(minter, table)
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return &testFixture{table: table, minter: minter, server: srv, http: hs}
}

func (f *testFixture) tokenFor(t *testing.T, username, password string) string {
	t.Helper()
	profile, err := f.table.Verify(username, password)
	require.NoError(t, err)
	tok, _, err := f.minter.AccessToken(profile)
	require.NoError(t, err)
	return tok
}

func (f *testFixture) do(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestVerifyCredentials(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.do(t, http.MethodPost, server.RouteAuthVerify, "", map[string]string{"username": "demo@demo.com", "password": "demo123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p users.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "demo@demo.com", p.Email)
	assert.True(t, p.HasRole("user"))

	resp = f.do(t, http.MethodPost, server.RouteAuthVerify, "", map[string]string{"username": "x", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuth(t *testing.T) {
	f := setupTestFixture(t)
	valid := f.tokenFor(t, "demo@demo.com", "demo123")
	foreign, _, err := token.NewMinter(token.NewHMACSigner("other-secret")).AccessToken(users.Profile{ID: "u"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + foreign, want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
		{name: "scheme is case-insensitive", header: "bearer " + valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.http.URL+server.RouteAPIMe, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.tokenFor(t, "demo@demo.com", "demo123")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteAPIMe, tok, nil).StatusCode)
	require.NoError(t, f.server.RevokeToken(tok))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteAPIMe, tok, nil).StatusCode)
}

func TestItemsAreScopedToOwner(t *testing.T) {
	f := setupTestFixture(t)
	demo := f.tokenFor(t, "demo@demo.com", "demo123")
	admin := f.tokenFor(t, "admin@demo.com", "admin123")

	resp := f.do(t, http.MethodPost, server.RouteAPIItems, demo, map[string]any{"name": "breathe"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created server.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)

	resp = f.do(t, http.MethodGet, server.RouteAPIItems, admin, nil)
	var adminItems []server.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&adminItems))
	assert.Empty(t, adminItems)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/items/"+created.ID, admin, nil).StatusCode)

	resp = f.do(t, http.MethodPut, "/api/items/"+created.ID, demo, map[string]any{"name": "breathe", "done": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated server.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.True(t, updated.Done)

	resp = f.do(t, http.MethodGet, server.RouteAPIAdminItem, admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []server.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	assert.Len(t, all, 1)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, server.RouteAPIAdminItem, demo, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/items/"+created.ID, demo, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/items/"+created.ID, demo, nil).StatusCode)
}

func TestCreateItemValidation(t *testing.T) {
	f := setupTestFixture(t)
	demo := f.tokenFor(t, "demo@demo.com", "demo123")

	resp := f.do(t, http.MethodPost, server.RouteAPIItems, demo, map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_request", body["error"])
}
