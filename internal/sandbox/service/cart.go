package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
)

type CartService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
	Now    func() time.Time
}

type CartView struct {
	Items          []models.CartItem `json:"items"`
	TotalCartPrice decimal.Decimal   `json:"total_cart_price"`
}

func (s *CartService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CartService) GetCart(ctx context.Context, userID int64) (CartView, error) {
	items, err := s.Repo.GetCart(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return CartView{Items: items, TotalCartPrice: total}, nil
}

// AddToCart merges additively: adding to an existing line raises its quantity.
func (s *CartService) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be more than zero: %w", fieldError("quantity", "Ensure this value is greater than or equal to 1."))
	}
	if _, err := s.Repo.ProductByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}

	item := models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	if err := s.Repo.AddToCart(ctx, &item); err != nil {
		return nil, err
	}

	publish(ctx, s.Events, s.now(), events.TopicCart, userID, "cart_item_added",
		map[string]any{"product_id": productID, "quantity": item.Quantity})
	return &item, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fieldError("quantity", "Ensure this value is greater than or equal to 1.")
	}
	item, err := s.Repo.SetCartQuantity(ctx, userID, lineID, quantity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart line %d: %w", lineID, ErrNotFound)
		}
		return nil, err
	}

	publish(ctx, s.Events, s.now(), events.TopicCart, userID, "cart_item_updated",
		map[string]any{"cart_id": lineID, "quantity": quantity})
	return item, nil
}

func (s *CartService) DeleteLine(ctx context.Context, userID, lineID int64) error {
	if err := s.Repo.DeleteCartLine(ctx, userID, lineID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cart line %d: %w", lineID, ErrNotFound)
		}
		return err
	}

	publish(ctx, s.Events, s.now(), events.TopicCart, userID, "cart_item_removed",
		map[string]any{"cart_id": lineID})
	return nil
}
