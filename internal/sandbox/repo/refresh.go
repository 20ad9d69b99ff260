package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/models"
)

var ErrRefreshUnusable = errors.New("refresh token expired or revoked")

func (r *GormRepo) AddRefresh(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func refreshUsable(tx *gorm.DB, jti string, now int64) error {
	var stored models.RefreshToken
	if err := tx.Where("jti = ?", jti).First(&stored).Error; err != nil {
		return err
	}
	if stored.Revoked || stored.ExpiresAt < now {
		return ErrRefreshUnusable
	}
	return nil
}

// RotateRefresh revokes oldJTI and stores next in one transaction. It fails when the
// old token is unknown, revoked or expired at now (unix seconds).
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI string, now int64, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refreshUsable(tx, oldJTI, now); err != nil {
			return err
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND revoked = ?", oldJTI, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshUnusable
		}
		return tx.Create(next).Error
	})
}

func (r *GormRepo) RevokeUserRefresh(ctx context.Context, userID int64) error {
	return r.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
