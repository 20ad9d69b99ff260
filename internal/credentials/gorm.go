package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type storedCredentials struct {
	Profile      string `gorm:"primaryKey"`
	AccessToken  string `gorm:"not null;default:''"`
	RefreshToken string `gorm:"not null;default:''"`
	UserID       string `gorm:"not null;default:''"`
	UpdatedAt    time.Time
}

func (storedCredentials) TableName() string {
	return "client_credentials"
}

// GormStore keeps credentials in a SQL table, one row per profile. With the default
// sqlite file it survives process restarts the way browser local storage does.
type GormStore struct {
	DB      *gorm.DB
	Profile string
}

func NewGormStore(ctx context.Context, db *gorm.DB, profile string) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&storedCredentials{}); err != nil {
		return nil, fmt.Errorf("migrate credentials: %w", err)
	}
	return &GormStore{DB: db, Profile: profile}, nil
}

func (s *GormStore) Load(ctx context.Context) (Credentials, error) {
	var rec storedCredentials
	err := s.DB.WithContext(ctx).Where("profile = ?", s.Profile).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return Credentials{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		UserID:       rec.UserID,
	}, nil
}

func (s *GormStore) Save(ctx context.Context, c Credentials) error {
	rec := storedCredentials{
		Profile:      s.Profile,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		UserID:       c.UserID,
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *GormStore) SetAccessToken(ctx context.Context, token string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&storedCredentials{}).
			Where("profile = ?", s.Profile).
			Update("access_token", token)
		if res.Error != nil {
			return fmt.Errorf("set access token: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&storedCredentials{Profile: s.Profile, AccessToken: token}).Error
	})
}

func (s *GormStore) Clear(ctx context.Context) error {
	err := s.DB.WithContext(ctx).
		Where("profile = ?", s.Profile).
		Delete(&storedCredentials{}).Error
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
