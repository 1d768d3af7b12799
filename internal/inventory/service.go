package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"gorm.io/gorm"
)

// Item is a single product/quantity pair in a stock request.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// InsufficientItem describes one product that could not satisfy a request.
type InsufficientItem struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cacheInvalidator interface {
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
	ProductKey(productID int64) string
	ProductListPattern() string
}

// Service manages stock levels for the catalog.
type Service interface {
	// CheckAvailability reports which of the requested items lack stock.
	// The answer is advisory, only Reserve holds the levels.
	CheckAvailability(ctx context.Context, items []Item) ([]InsufficientItem, error)
	// Reserve atomically decrements stock for every item or none of them.
	Reserve(ctx context.Context, items []Item) error
	// Release returns previously reserved stock, used to compensate a
	// failed downstream step.
	Release(ctx context.Context, items []Item) error
	// GetLevel returns the current stock quantity for a product.
	GetLevel(ctx context.Context, productID int64) (int, error)
}

type service struct {
	db    *gorm.DB
	tx    txRunner
	cache cacheInvalidator
	logg  *logger.Logger
}

// NewService constructs an inventory service.
func NewService(db *gorm.DB, tx txRunner, cache cacheInvalidator, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: db, tx: tx, cache: cache, logg: logg}, nil
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range items {
		if item.ProductID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	return nil
}

func (s *service) CheckAvailability(ctx context.Context, items []Item) ([]InsufficientItem, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var insufficient []InsufficientItem
	for _, item := range items {
		level, err := s.levelFor(ctx, s.db, item.ProductID)
		if err != nil {
			return nil, err
		}
		if level < item.Quantity {
			insufficient = append(insufficient, InsufficientItem{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: level,
			})
		}
	}
	return insufficient, nil
}

func (s *service) Reserve(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var insufficient []InsufficientItem
		for _, item := range items {
			res := tx.WithContext(ctx).Exec(`
				UPDATE products
				SET stock_quantity = stock_quantity - ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND stock_quantity >= ?
			`, item.Quantity, item.ProductID, item.Quantity)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
			}
			if res.RowsAffected == 0 {
				level, err := s.levelFor(ctx, tx, item.ProductID)
				if err != nil {
					return err
				}
				insufficient = append(insufficient, InsufficientItem{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: level,
				})
			}
		}
		if len(insufficient) > 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientInventory, "insufficient stock for requested items").
				WithDetails(insufficient)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, items)
	return nil
}

func (s *service) Release(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range items {
			res := tx.WithContext(ctx).Exec(`
				UPDATE products
				SET stock_quantity = stock_quantity + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, item.Quantity, item.ProductID)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
			}
			if res.RowsAffected == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, items)
	return nil
}

func (s *service) GetLevel(ctx context.Context, productID int64) (int, error) {
	if productID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	return s.levelFor(ctx, s.db, productID)
}

func (s *service) levelFor(ctx context.Context, db *gorm.DB, productID int64) (int, error) {
	var product models.Product
	err := db.WithContext(ctx).
		Select("stock_quantity").
		First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
	}
	return product.StockQuantity, nil
}

// invalidate drops cached product entries touched by a stock mutation.
// Failures are logged and ignored, readers fall back to the store.
func (s *service) invalidate(ctx context.Context, items []Item) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, s.cache.ProductKey(item.ProductID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logg.Warn(ctx, "product cache invalidation failed")
	}
	if err := s.cache.DelPattern(ctx, s.cache.ProductListPattern()); err != nil {
		s.logg.Warn(ctx, "product list cache invalidation failed")
	}
}
