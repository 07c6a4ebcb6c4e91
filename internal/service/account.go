package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/events"
	"github.com/vidstream/backend/internal/hash"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repo"
	"github.com/vidstream/backend/internal/search"
	"github.com/vidstream/backend/internal/tokens"
)

type UserService struct {
	Repo   *repo.UserRepo
	Hasher *hash.Hasher
	Tokens *tokens.Issuer
	Media  media.Uploader
	Events *events.Producer
	Search *search.Index

	RevokeSessionsOnPasswordChange bool
}

type TokenPair struct {
	Access     string
	Refresh    string
	AccessExp  time.Time
	RefreshExp time.Time
}

type FileUpload struct {
	Reader   io.Reader
	Filename string
}

type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
	Avatar   *FileUpload
	Cover    *FileUpload
}

// Register creates a new Identity. The conflict check runs before any
// upload so a duplicate handle never touches the media service, and the
// row is created only after uploads succeed; if the create still fails the
// uploaded assets are destroyed.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "user.register")

	username := normalize(in.Username)
	email := normalize(in.Email)
	fullname := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullname == "" || in.Password == "" {
		return nil, apperr.Validation("all fields are required")
	}

	_, err := s.Repo.FindByUsernameOrEmail(ctx, username, email)
	if err == nil {
		return nil, apperr.Conflict("user already exists")
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	avatarURL, err := s.upload(ctx, in.Avatar)
	if err != nil {
		return nil, err
	}
	coverURL, err := s.upload(ctx, in.Cover)
	if err != nil {
		s.destroy(ctx, avatarURL)
		return nil, err
	}

	pwHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		s.destroy(ctx, avatarURL, coverURL)
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		FullName:     fullname,
		PasswordHash: pwHash,
		AvatarURL:    avatarURL,
		CoverURL:     coverURL,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		s.destroy(ctx, avatarURL, coverURL)
		return nil, err
	}

	s.publish(ctx, events.TypeUserRegistered, user)
	if err := s.Search.IndexUser(ctx, user); err != nil {
		l.Warn("profile index failed", "user_id", user.ID, "error", err)
	}

	l.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials and starts the account's single session,
// displacing any previous one.
func (s *UserService) Login(ctx context.Context, username, email, password string) (*models.User, *TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "user.login")

	username = normalize(username)
	email = normalize(email)
	if password == "" || (username == "" && email == "") {
		return nil, nil, apperr.Validation("username or email and password are required")
	}

	user, err := s.Repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil, apperr.NotFound("user does not exist")
		}
		return nil, nil, err
	}

	if !s.Hasher.Check(user.PasswordHash, password) {
		l.Warn("login failed", "user_id", user.ID, "reason", "password mismatch")
		return nil, nil, apperr.Auth("invalid credentials")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Repo.UpdateRefreshToken(ctx, user.ID, pair.Refresh); err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.TypeUserLoggedIn, user)
	l.Info("login successful", "user_id", user.ID)
	return user, pair, nil
}

// Logout clears the stored refresh token. The last issued access token
// stays cryptographically valid until its own expiry; only the session is
// gone.
func (s *UserService) Logout(ctx context.Context, user *models.User) error {
	if err := s.Repo.UpdateRefreshToken(ctx, user.ID, ""); err != nil {
		return err
	}
	s.publish(ctx, events.TypeUserLoggedOut, user)
	return nil
}

// Refresh rotates the token pair. The presented token must both verify
// and equal the stored value: a stale token whose signature is still good
// has been revoked by a later rotation, logout, or login elsewhere. All
// verification failures surface the same way.
func (s *UserService) Refresh(ctx context.Context, raw string) (*models.User, *TokenPair, error) {
	if raw == "" {
		return nil, nil, apperr.Auth("unauthorized")
	}
	claims, err := s.Tokens.ParseRefresh(raw)
	if err != nil {
		return nil, nil, apperr.Auth("unauthorized")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, apperr.Auth("unauthorized")
	}
	user, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, apperr.Auth("unauthorized")
	}
	if user.RefreshToken == "" || user.RefreshToken != raw {
		return nil, nil, apperr.Auth("expired")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Repo.RotateRefreshToken(ctx, user.ID, raw, pair.Refresh); err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *UserService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperr.Validation("old and new passwords are required")
	}
	if !s.Hasher.Check(user.PasswordHash, oldPassword) {
		return apperr.Auth("invalid old password")
	}
	pwHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdatePasswordHash(ctx, user.ID, pwHash); err != nil {
		return err
	}
	if s.RevokeSessionsOnPasswordChange {
		return s.Repo.UpdateRefreshToken(ctx, user.ID, "")
	}
	return nil
}

func (s *UserService) issuePair(user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.Tokens.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.Tokens.IssueRefresh(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Access:     access,
		Refresh:    refresh,
		AccessExp:  accessExp,
		RefreshExp: refreshExp,
	}, nil
}

func (s *UserService) upload(ctx context.Context, f *FileUpload) (string, error) {
	if f == nil || f.Reader == nil {
		return "", nil
	}
	if s.Media == nil {
		return "", apperr.External("media service not configured", nil)
	}
	url, err := s.Media.Upload(ctx, f.Reader, f.Filename)
	if err != nil {
		return "", apperr.External("media upload failed", err)
	}
	return url, nil
}

// destroy is compensation for a workflow that failed after uploading.
// Best effort: a leaked asset is logged, never returned to the caller.
func (s *UserService) destroy(ctx context.Context, urls ...string) {
	if s.Media == nil {
		return
	}
	l := logging.FromContext(ctx)
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.Media.Destroy(ctx, u); err != nil {
			l.Warn("media cleanup failed", "url", u, "error", err)
		}
	}
}

func (s *UserService) publish(ctx context.Context, eventType string, user *models.User) {
	err := s.Events.Publish(ctx, events.UserEvent{
		Type:     eventType,
		UserID:   user.ID.String(),
		Username: user.Username,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", eventType, "error", err)
	}
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
