package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
)

// Channel is the public, channel-style view of an account. Subscription
// counts are aggregated by the relationships service and carried here as
// opaque numbers.
type Channel struct {
	Username     string `json:"username"`
	FullName     string `json:"fullname"`
	Avatar       string `json:"avatar"`
	CoverImage   string `json:"coverImage"`
	Subscribers  int64  `json:"subscribersCount"`
	SubscribedTo int64  `json:"channelsSubscribedToCount"`
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *UserService) UpdateAccountDetails(ctx context.Context, user *models.User, fullname, email string) (*models.User, error) {
	fullname = strings.TrimSpace(fullname)
	email = normalize(email)
	if fullname == "" || email == "" {
		return nil, apperr.Validation("fullname and email are required")
	}
	updated, err := s.Repo.UpdateAccountDetails(ctx, user.ID, fullname, email)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, updated)
	return updated, nil
}

// UpdateAvatar uploads the replacement first, swaps the reference, then
// destroys the previous asset. The old asset only becomes garbage after
// the row points at the new one.
func (s *UserService) UpdateAvatar(ctx context.Context, user *models.User, f *FileUpload) (*models.User, error) {
	if f == nil || f.Reader == nil {
		return nil, apperr.Validation("avatar file is required")
	}
	url, err := s.upload(ctx, f)
	if err != nil {
		return nil, err
	}
	updated, err := s.Repo.UpdateAvatarURL(ctx, user.ID, url)
	if err != nil {
		s.destroy(ctx, url)
		return nil, err
	}
	s.destroy(ctx, user.AvatarURL)
	s.reindex(ctx, updated)
	return updated, nil
}

func (s *UserService) UpdateCover(ctx context.Context, user *models.User, f *FileUpload) (*models.User, error) {
	if f == nil || f.Reader == nil {
		return nil, apperr.Validation("cover image file is required")
	}
	url, err := s.upload(ctx, f)
	if err != nil {
		return nil, err
	}
	updated, err := s.Repo.UpdateCoverURL(ctx, user.ID, url)
	if err != nil {
		s.destroy(ctx, url)
		return nil, err
	}
	s.destroy(ctx, user.CoverURL)
	s.reindex(ctx, updated)
	return updated, nil
}

func (s *UserService) ChannelProfile(ctx context.Context, handle string) (*Channel, error) {
	handle = normalize(handle)
	if handle == "" {
		return nil, apperr.Validation("handle is required")
	}
	user, err := s.Repo.FindByUsernameOrEmail(ctx, handle, handle)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("channel does not exist")
		}
		return nil, err
	}
	return &Channel{
		Username:   user.Username,
		FullName:   user.FullName,
		Avatar:     user.AvatarURL,
		CoverImage: user.CoverURL,
	}, nil
}

func (s *UserService) WatchHistory(ctx context.Context, user *models.User) ([]models.WatchEntry, error) {
	return s.Repo.WatchHistory(ctx, user.ID)
}

func (s *UserService) reindex(ctx context.Context, user *models.User) {
	if err := s.Search.IndexUser(ctx, user); err != nil {
		logging.FromContext(ctx).Warn("profile index failed", "user_id", user.ID, "error", err)
	}
}
