package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

// Searcher finds product ids for a filter, best match first.
type Searcher interface {
	Search(ctx context.Context, f repo.ProductFilter) ([]int64, error)
	IndexProduct(ctx context.Context, p models.Product) error
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Search Searcher
}

func (s *CatalogService) List(ctx context.Context) ([]models.Product, error) {
	return s.Repo.ListProducts(ctx)
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.Repo.ProductByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return p, err
}

// Filter uses the search index when one is configured and falls back to the database.
func (s *CatalogService) Filter(ctx context.Context, f repo.ProductFilter) ([]models.Product, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, fieldError("min_price", "min_price must not exceed max_price.")
	}

	if s.Search != nil {
		ids, err := s.Search.Search(ctx, f)
		if err == nil {
			return s.byIDs(ctx, ids)
		}
		logging.FromContext(ctx).Warn("search_fallback_to_db", "error", err)
	}
	return s.Repo.FilterProducts(ctx, f)
}

func (s *CatalogService) Create(ctx context.Context, p *models.Product) error {
	if err := s.Repo.CreateProduct(ctx, p); err != nil {
		return err
	}
	if s.Search != nil {
		if err := s.Search.IndexProduct(ctx, *p); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "product_id", p.ID, "error", err)
		}
	}
	return nil
}

// byIDs loads products and keeps the order of ids.
func (s *CatalogService) byIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	found, err := s.Repo.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
