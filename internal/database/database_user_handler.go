package database

import (
	"context"
	"errors"

	"shrike/internal/domain"

	"gorm.io/gorm"
)

// ErrUserNotFound marks a lookup for a user that does not exist.
var ErrUserNotFound = errors.New("user not found")

func (h *Handler) CreateUser(ctx context.Context, user *domain.User) error {
	return h.db.WithContext(ctx).Create(user).Error
}

func (h *Handler) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (h *Handler) GetUserFromId(ctx context.Context, id uint) (domain.User, error) {
	var user domain.User
	err := h.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (h *Handler) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error
	return count, err
}

func (h *Handler) ChangePassword(ctx context.Context, userID uint, hashedPassword string) error {
	return h.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("password", hashedPassword).Error
}
