package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/models"
)

// UserRepo is the credential store. Every error leaving it is an apperr
// kind: not-found and duplicate-key outcomes are translated here so the
// service layer never sees gorm sentinels.
type UserRepo struct {
	DB *gorm.DB
}

func (r *UserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Storage(err)
	}
	return &user, nil
}

func (r *UserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).
		Where("username = ? OR email = ?", username, email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Storage(err)
	}
	return &user, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("user already exists")
		}
		return apperr.Storage(err)
	}
	return nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, newHash string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password_hash", newHash)
	if res.Error != nil {
		return apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// UpdateRefreshToken overwrites the stored session token unconditionally.
// Login uses this on purpose: a new login displaces whatever session was
// active before. An empty token clears the session (logout).
func (r *UserRepo) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("refresh_token", token)
	if res.Error != nil {
		return apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// RotateRefreshToken swaps old for next only if old is still the stored
// value. Two concurrent refresh calls with the same token therefore cannot
// both win: the loser's conditional update matches zero rows.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, old, next string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", id, old).
		Update("refresh_token", next)
	if res.Error != nil {
		return apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Auth("expired")
	}
	return nil
}

func (r *UserRepo) UpdateAccountDetails(ctx context.Context, id uuid.UUID, fullname, email string) (*models.User, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"full_name": fullname, "email": email})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("email already in use")
		}
		return nil, apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepo) UpdateAvatarURL(ctx context.Context, id uuid.UUID, url string) (*models.User, error) {
	return r.updateColumn(ctx, id, "avatar_url", url)
}

func (r *UserRepo) UpdateCoverURL(ctx context.Context, id uuid.UUID, url string) (*models.User, error) {
	return r.updateColumn(ctx, id, "cover_url", url)
}

func (r *UserRepo) updateColumn(ctx context.Context, id uuid.UUID, column, value string) (*models.User, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return nil, apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepo) AppendWatchEntry(ctx context.Context, id uuid.UUID, videoID string) error {
	entry := models.WatchEntry{UserID: id, VideoID: videoID, WatchedAt: time.Now()}
	if err := r.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *UserRepo) WatchHistory(ctx context.Context, id uuid.UUID) ([]models.WatchEntry, error) {
	var entries []models.WatchEntry
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", id).
		Order("watched_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return entries, nil
}
