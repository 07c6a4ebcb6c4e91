package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vidstream/backend/internal/hash"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repo"
	"github.com/vidstream/backend/internal/service"
	"github.com/vidstream/backend/internal/tokens"
)

type testEnv struct {
	e   *echo.Echo
	svc *service.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.WatchEntry{}))

	userRepo := &repo.UserRepo{DB: db}
	issuer := &tokens.Issuer{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	svc := &service.UserService{
		Repo:   userRepo,
		Hasher: hash.New(bcrypt.MinCost),
		Tokens: issuer,
	}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(e, &Deps{
		UserHandler: &UserHTTP{Svc: svc},
		Auth:        middleware.NewAuth(issuer, userRepo),
	})

	return &testEnv{e: e, svc: svc}
}

func (env *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doJSON(t *testing.T, method, path string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return env.do(t, method, path, bytes.NewReader(data), echo.MIMEApplicationJSON, cookies...)
}

func (env *testEnv) register(t *testing.T) {
	t.Helper()

	rec := env.registerForm(t, map[string]string{
		"username": "ada",
		"email":    "ada@x.com",
		"fullname": "Ada L",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func (env *testEnv) registerForm(t *testing.T, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return env.do(t, http.MethodPost, "/users/register", &buf, w.FormDataContentType())
}

func (env *testEnv) login(t *testing.T) (access, refresh *http.Cookie) {
	t.Helper()

	rec := env.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"username": "ada",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, ck := range rec.Result().Cookies() {
		switch ck.Name {
		case "accessToken":
			access = ck
		case "refreshToken":
			refresh = ck
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (Response, map[string]any) {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.registerForm(t, map[string]string{
		"username": "ada",
		"email":    "ada@x.com",
		"fullname": "Ada L",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp, data := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ada", data["username"])

	// Secret material never leaves the lifecycle.
	body := rec.Body.String()
	assert.NotContains(t, body, "secret1")
	assert.NotContains(t, body, "PasswordHash")
	assert.NotContains(t, body, "refresh")
}

func TestRegisterEndpoint_Conflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	rec := env.registerForm(t, map[string]string{
		"username": "ada",
		"email":    "other@x.com",
		"fullname": "Other",
		"password": "secret2",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	resp, _ := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
}

func TestRegisterEndpoint_MissingFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.registerForm(t, map[string]string{"username": "ada"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	rec := env.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"username": "ada",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var access, refresh *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		switch ck.Name {
		case "accessToken":
			access = ck
		case "refreshToken":
			refresh = ck
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.True(t, refresh.HttpOnly)

	// Tokens are cookie-only.
	body := rec.Body.String()
	assert.NotContains(t, body, access.Value)
	assert.NotContains(t, body, refresh.Value)

	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "ada", data["username"])
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	rec := env.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"username": "ada",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginEndpoint_UnknownUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"username": "nobody",
		"password": "secret1",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshEndpoint_RotationAndReplay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	_, refresh := env.login(t)

	rec := env.do(t, http.MethodPost, "/users/refresh-token", nil, "", refresh)
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "refreshToken" {
			rotated = ck
		}
	}
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	// Replaying the pre-rotation token must fail.
	rec = env.do(t, http.MethodPost, "/users/refresh-token", nil, "", refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint_TokenFromBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	_, refresh := env.login(t)

	rec := env.doJSON(t, http.MethodPost, "/users/refresh-token", map[string]string{
		"refreshToken": refresh.Value,
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshEndpoint_MissingToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/users/refresh-token", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, refresh := env.login(t)

	rec := env.do(t, http.MethodPost, "/users/logout", nil, "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "accessToken" || ck.Name == "refreshToken" {
			assert.Less(t, ck.MaxAge, 0)
			assert.Empty(t, ck.Value)
		}
	}

	// The session is gone: the old refresh token is rejected.
	rec = env.do(t, http.MethodPost, "/users/refresh-token", nil, "", refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpoint_RequiresAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/users/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUserEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, _ := env.login(t)

	rec := env.do(t, http.MethodGet, "/users/current-user", nil, "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "ada", data["username"])
	assert.NotContains(t, rec.Body.String(), "secret1")
}

func TestChangePasswordEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, _ := env.login(t)

	rec := env.doJSON(t, http.MethodPost, "/users/change-password", map[string]string{
		"oldPassword": "wrong",
		"newPassword": "secret2",
	}, access)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/users/change-password", map[string]string{
		"oldPassword": "secret1",
		"newPassword": "secret2",
	}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"username": "ada",
		"password": "secret2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateDetailsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, _ := env.login(t)

	rec := env.doJSON(t, http.MethodPatch, "/users/update-user-details", map[string]string{
		"fullname": "Ada Lovelace",
		"email":    "ada@new.com",
	}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "Ada Lovelace", data["fullname"])
	assert.Equal(t, "ada@new.com", data["email"])
}

func TestChannelEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, _ := env.login(t)

	rec := env.do(t, http.MethodGet, "/users/c/ada", nil, "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "ada", data["username"])

	rec = env.do(t, http.MethodGet, "/users/c/nobody", nil, "", access)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)
	access, _ := env.login(t)

	rec := env.do(t, http.MethodGet, "/users/history", nil, "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	resp, _ := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
}

func TestSearchEndpoint_QueryRequired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/users/search", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
