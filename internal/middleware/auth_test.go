package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repo"
	"github.com/vidstream/backend/internal/tokens"
)

type authEnv struct {
	e      *echo.Echo
	auth   *Auth
	issuer *tokens.Issuer
	user   *models.User
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.WatchEntry{}))

	user := &models.User{
		Username:     "ada",
		Email:        "ada@x.com",
		FullName:     "Ada L",
		PasswordHash: "x",
	}
	userRepo := &repo.UserRepo{DB: db}
	require.NoError(t, userRepo.Create(context.Background(), user))

	issuer := &tokens.Issuer{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}

	return &authEnv{
		e:      echo.New(),
		auth:   NewAuth(issuer, userRepo),
		issuer: issuer,
		user:   user,
	}
}

func (env *authEnv) invoke(t *testing.T, mutate func(*http.Request)) (string, error) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/users/current-user", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)

	var seen string
	handler := env.auth.RequireAuth(func(c echo.Context) error {
		seen = CurrentUser(c).Username
		return c.NoContent(http.StatusOK)
	})
	return seen, handler(c)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	_, err := env.invoke(t, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	assert.Equal(t, "missing token", apperr.Message(err))
}

func TestRequireAuth_CookieToken(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	token, _, err := env.issuer.IssueAccess(env.user)
	require.NoError(t, err)

	seen, err := env.invoke(t, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", seen)
}

func TestRequireAuth_AuthorizationHeader(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	token, _, err := env.issuer.IssueAccess(env.user)
	require.NoError(t, err)

	seen, err := env.invoke(t, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", seen)
}

func TestRequireAuth_CookiePreferredOverHeader(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	token, _, err := env.issuer.IssueAccess(env.user)
	require.NoError(t, err)

	seen, err := env.invoke(t, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
		req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", seen)
}

// Expired, malformed and unknown-subject tokens must be indistinguishable
// to the caller.
func TestRequireAuth_UniformFailureMessage(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)

	expiredIssuer := &tokens.Issuer{
		AccessSecret:  env.issuer.AccessSecret,
		RefreshSecret: env.issuer.RefreshSecret,
		AccessTTL:     -time.Minute,
	}
	expired, _, err := expiredIssuer.IssueAccess(env.user)
	require.NoError(t, err)

	ghost := &models.User{ID: uuid.New(), Username: "ghost"}
	unknown, _, err := env.issuer.IssueAccess(ghost)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "malformed", token: "not-a-jwt"},
		{name: "unknown subject", token: unknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := env.invoke(t, func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.token})
			})
			require.Error(t, err)
			assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
			assert.Equal(t, "invalid token", apperr.Message(err))
		})
	}
}
