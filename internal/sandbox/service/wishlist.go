package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
)

type WishlistService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
	Now    func() time.Time
}

func (s *WishlistService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *WishlistService) List(ctx context.Context, userID int64) ([]models.WishlistItem, error) {
	return s.Repo.GetWishlist(ctx, userID)
}

// Add returns ErrAlreadyExists when the product is already on the list.
func (s *WishlistService) Add(ctx context.Context, userID, productID int64) (*models.WishlistItem, error) {
	if _, err := s.Repo.ProductByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}

	item := models.WishlistItem{UserID: userID, ProductID: productID}
	if err := s.Repo.AddToWishlist(ctx, &item); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	publish(ctx, s.Events, s.now(), events.TopicWishlist, userID, "wishlist_item_added",
		map[string]any{"product_id": productID})
	return &item, nil
}

func (s *WishlistService) Remove(ctx context.Context, userID, productID int64) error {
	if err := s.Repo.DeleteFromWishlist(ctx, userID, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return err
	}

	publish(ctx, s.Events, s.now(), events.TopicWishlist, userID, "wishlist_item_removed",
		map[string]any{"product_id": productID})
	return nil
}
