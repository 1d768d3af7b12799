package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shoptrace/shoptrace-api/pkg/config"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	pkgredis "github.com/shoptrace/shoptrace-api/pkg/redis"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Service exposes read operations over the product catalog.
type Service interface {
	GetProduct(ctx context.Context, id int64) (*ProductDTO, error)
	ListProducts(ctx context.Context, page, limit int) (*ProductListResult, error)
}

type cacheStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	ProductKey(productID int64) string
	ProductListKey(page, limit int) string
}

type service struct {
	repo  *Repository
	cache cacheStore
	cfg   config.CacheConfig
	logg  *logger.Logger
}

// NewService constructs a product service instance.
func NewService(repo *Repository, cache cacheStore, cfg config.CacheConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, cache: cache, cfg: cfg, logg: logg}, nil
}

// GetProduct returns a product by ID, serving from cache when possible.
// Cache failures degrade to a direct store read.
func (s *service) GetProduct(ctx context.Context, id int64) (*ProductDTO, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}

	key := s.cache.ProductKey(id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var dto ProductDTO
		if err := json.Unmarshal([]byte(raw), &dto); err == nil {
			return &dto, nil
		}
		s.logg.Warn(ctx, "discarding unreadable product cache entry")
	} else if !errors.Is(err, pkgredis.Nil) {
		s.logg.Warn(ctx, "product cache read failed, falling back to store")
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	dto := toDTO(product)
	s.writeCache(ctx, key, dto, s.cfg.ProductTTL)
	return &dto, nil
}

// ListProducts returns a page of the catalog, cached briefly to absorb
// repeated listing traffic.
func (s *service) ListProducts(ctx context.Context, page, limit int) (*ProductListResult, error) {
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	key := s.cache.ProductListKey(page, limit)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var result ProductListResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			return &result, nil
		}
		s.logg.Warn(ctx, "discarding unreadable product list cache entry")
	} else if !errors.Is(err, pkgredis.Nil) {
		s.logg.Warn(ctx, "product list cache read failed, falling back to store")
	}

	list, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	result := &ProductListResult{
		Products: make([]ProductDTO, 0, len(list)),
		Page:     page,
		Limit:    limit,
		Total:    total,
	}
	for i := range list {
		result.Products = append(result.Products, toDTO(&list[i]))
	}

	s.writeCache(ctx, key, result, s.cfg.ProductListTTL)
	return result, nil
}

func (s *service) writeCache(ctx context.Context, key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		s.logg.Warn(ctx, "marshal cache payload failed")
		return
	}
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		s.logg.Warn(ctx, "cache write failed")
	}
}
