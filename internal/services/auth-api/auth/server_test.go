package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInternalKey = "bridge-key"

func newRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	NewServer(f.uc, NewGateway(f.uc, nil), Opts{CookieSecure: true, InternalKey: testInternalKey}).Register(r)
	return r, f
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonReq(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

type sessionBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	User         *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestServer_RefreshCookieFlow(t *testing.T) {
	r, f := newRouter(t)
	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.RefreshToken})
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[sessionBody](t, w)
	assert.NotEmpty(t, body.AccessToken)
	assert.Empty(t, body.RefreshToken)
	assert.EqualValues(t, 15*60, body.ExpiresIn)
	require.NotNil(t, body.User)
	assert.Equal(t, "Alice", body.User.Name)

	c := refreshCookie(t, w)
	require.NotNil(t, c)
	assert.NotEqual(t, sess.RefreshToken, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), c.MaxAge)

	// Replaying the consumed cookie fails and clears it.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.RefreshToken})
	w = do(r, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "refresh_not_usable", decode[map[string]string](t, w)["error"])
	cleared := refreshCookie(t, w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestServer_RefreshCookieSecureFollowsOpts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, secure := range []bool{true, false} {
		f := newFixture(t)
		r := gin.New()
		NewServer(f.uc, NewGateway(f.uc, nil), Opts{CookieSecure: secure}).Register(r)
		sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.RefreshToken})
		w := do(r, req)
		require.Equal(t, http.StatusOK, w.Code)
		c := refreshCookie(t, w)
		require.NotNil(t, c)
		assert.Equal(t, secure, c.Secure)
		assert.Equal(t, secure, strings.Contains(w.Header().Get("Set-Cookie"), "; Secure"))
	}
}

func TestServer_RefreshInternalErrorKeepsCookie(t *testing.T) {
	r, f := newRouter(t)
	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	f.flaky.fails.Store(1)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.RefreshToken})
	w := do(r, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decode[map[string]string](t, w)["error"])
	assert.Nil(t, refreshCookie(t, w))

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.RefreshToken})
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, refreshCookie(t, w))
}

func TestServer_RefreshBodyFlow(t *testing.T) {
	r, f := newRouter(t)
	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	w := do(r, jsonReq(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": sess.RefreshToken}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[sessionBody](t, w)
	assert.NotEmpty(t, body.RefreshToken)
	assert.NotEqual(t, sess.RefreshToken, body.RefreshToken)
	assert.Nil(t, refreshCookie(t, w))

	w = do(r, jsonReq(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": body.RefreshToken}))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RefreshFailures(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_credential", decode[map[string]string](t, w)["error"])

	for _, secret := range []string{"garbage", "deadbeef"} {
		w = do(r, jsonReq(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": secret}))
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, map[string]string{"error": "refresh_not_usable"}, decode[map[string]string](t, w))
	}
}

func TestServer_LogoutAlwaysSucceeds(t *testing.T) {
	r, f := newRouter(t)
	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	reqs := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/auth/logout", nil),
		jsonReq(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "garbage"}),
		jsonReq(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": sess.RefreshToken}),
		jsonReq(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": sess.RefreshToken}),
	}
	for _, req := range reqs {
		w := do(r, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Logged out successfully", decode[map[string]string](t, w)["message"])
		c := refreshCookie(t, w)
		require.NotNil(t, c)
		assert.Less(t, c.MaxAge, 0)
	}

	_, err = f.store.Verify(context.Background(), sess.RefreshToken)
	require.ErrorIs(t, err, domainauth.ErrRefreshRevoked)
}

func TestServer_Status(t *testing.T) {
	r, f := newRouter(t)

	w := do(r, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, w.Body.String())

	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	w = do(r, httptest.NewRequest(http.MethodGet, "/auth/status?refreshToken="+sess.RefreshToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":true,"user":{"id":"u1","email":"alice@example.com","name":"Alice"}}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "garbage"})
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, w.Body.String())
}

func TestServer_MeAndLogoutAll(t *testing.T) {
	r, f := newRouter(t)
	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "u1", decode[map[string]any](t, w)["id"])

	req = httptest.NewRequest(http.MethodPost, "/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["revoked"])
}

func TestServer_StartSession(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, jsonReq(t, http.MethodPost, "/internal/sessions", map[string]string{"subjectId": "u1"}))
	require.Equal(t, http.StatusForbidden, w.Code)

	req := jsonReq(t, http.MethodPost, "/internal/sessions", map[string]string{"subjectId": "u1"})
	req.Header.Set(internalKeyHeader, testInternalKey)
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[sessionBody](t, w)
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)

	req = jsonReq(t, http.MethodPost, "/internal/sessions", map[string]string{"subjectId": "nobody"})
	req.Header.Set(internalKeyHeader, testInternalKey)
	w = do(r, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "identity_not_found", decode[map[string]string](t, w)["error"])
}

func TestServer_WhoAmI(t *testing.T) {
	r, f := newRouter(t)

	w := do(r, httptest.NewRequest(http.MethodGet, "/auth/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, w.Body.String())

	sess, err := f.uc.Issue(context.Background(), "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":true,"user":{"id":"u1","email":"alice@example.com","name":"Alice"}}`, w.Body.String())
}
