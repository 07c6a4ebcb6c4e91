package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repo"
	"github.com/vidstream/backend/internal/tokens"
)

const userContextKey = "user"

type Auth struct {
	Tokens *tokens.Issuer
	Repo   *repo.UserRepo
}

func NewAuth(issuer *tokens.Issuer, userRepo *repo.UserRepo) *Auth {
	return &Auth{Tokens: issuer, Repo: userRepo}
}

// RequireAuth resolves the bearer token into a user and attaches it to the
// context. Expired, malformed and unknown-id tokens all fail with the same
// message so a caller can't probe which one it was.
func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := BearerToken(c)
		if raw == "" {
			return apperr.Auth("missing token")
		}

		claims, err := m.Tokens.ParseAccess(raw)
		if err != nil {
			return apperr.Auth("invalid token")
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return apperr.Auth("invalid token")
		}
		user, err := m.Repo.FindByID(c.Request().Context(), id)
		if err != nil {
			return apperr.Auth("invalid token")
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

// BearerToken reads the access token from the cookie first, then the
// Authorization header.
func BearerToken(c echo.Context) string {
	if cookie, err := c.Cookie("accessToken"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

// CurrentUser returns the user attached by RequireAuth, or nil outside of
// an authenticated route.
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}
