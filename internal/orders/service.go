package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shoptrace/shoptrace-api/internal/inventory"
	"github.com/shoptrace/shoptrace-api/internal/payments"
	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	"github.com/shoptrace/shoptrace-api/pkg/enums"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	pkgredis "github.com/shoptrace/shoptrace-api/pkg/redis"
	"github.com/shoptrace/shoptrace-api/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const maxUserOrders = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLoader interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

type cacheStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	OrderKey(orderID int64) string
	UserOrdersKey(userID int64) string
}

// Service orchestrates the order lifecycle.
type Service interface {
	// CreateOrder runs the full checkout sequence: validation, pricing,
	// reservation, payment, and compensation when payment declines.
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	// GetOrder returns a hydrated order and whether it was served from cache.
	GetOrder(ctx context.Context, id int64) (*OrderDTO, bool, error)
	// ListUserOrders returns the user's most recent orders with item counts.
	ListUserOrders(ctx context.Context, userID int64) ([]OrderSummaryDTO, error)
}

type service struct {
	repo      *Repository
	tx        txRunner
	users     userLoader
	products  productLoader
	inventory inventory.Service
	gateway   payments.Gateway
	cache     cacheStore
	cacheCfg  config.CacheConfig
	tele      *telemetry.Telemetry
	logg      *logger.Logger
}

// NewService builds an order service with the required dependencies.
func NewService(
	repo *Repository,
	tx txRunner,
	users userLoader,
	products productLoader,
	inv inventory.Service,
	gateway payments.Gateway,
	cache cacheStore,
	cacheCfg config.CacheConfig,
	tele *telemetry.Telemetry,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if tele == nil {
		return nil, fmt.Errorf("telemetry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		users:     users,
		products:  products,
		inventory: inv,
		gateway:   gateway,
		cache:     cache,
		cacheCfg:  cacheCfg,
		tele:      tele,
		logg:      logg,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	ctx, span := s.tele.Start(ctx, "orders.create",
		attribute.Int64("user.id", input.UserID),
		attribute.Int("order.item_count", len(input.Items)),
	)
	defer span.End()

	method, items, err := s.validateInput(input)
	if err != nil {
		s.tele.RecordError(ctx, err)
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.UserID)

	// Step 1: the user must exist before anything is priced. The loaded row
	// also hydrates the response.
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		s.tele.RecordError(ctx, err)
		return nil, err
	}

	// Step 2: price every line from the catalog with decimal arithmetic.
	lines, total, err := s.priceItems(ctx, input.Items)
	if err != nil {
		s.tele.RecordError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.total", total.StringFixed(2)))

	// Step 3: advisory availability check. It can race with concurrent
	// reservations, the conditional decrement in step 5 is the real guard.
	insufficient, err := s.inventory.CheckAvailability(ctx, items)
	if err != nil {
		s.tele.RecordError(ctx, err)
		return nil, err
	}
	if len(insufficient) > 0 {
		err = pkgerrors.New(pkgerrors.CodeInsufficientInventory, "insufficient stock for requested items").
			WithDetails(insufficient)
		s.tele.RecordError(ctx, err)
		return nil, err
	}

	// Step 4: persist the pending order and its items in one transaction.
	order := &models.Order{
		UserID:        input.UserID,
		Status:        enums.OrderStatusPending,
		TotalAmount:   total,
		PaymentMethod: method,
		PaymentStatus: enums.PaymentStatusPending,
		Items:         lines,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateWithItems(ctx, order)
	}); err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		s.tele.RecordError(ctx, err)
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.tele.AddEvent(ctx, "order.created", attribute.Int64("order.id", order.ID))
	s.logg.Info(ctx, "order created")
	// The new row must show up in the user's history even if a later step
	// fails, so the cached history is dropped as soon as the row exists.
	s.dropCache(ctx, s.cache.UserOrdersKey(order.UserID))

	// Step 5: reserve stock in its own transaction. From here on the order
	// row is the audit trail, failures are recorded on it rather than
	// deleting it.
	if err := s.reserve(ctx, order, items); err != nil {
		return nil, err
	}

	// Step 6: charge, compensating the reservation if the processor declines.
	txn, err := s.charge(ctx, order, items, total, method)
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.PaymentStatusCompleted
	s.logg.Info(ctx, "order confirmed")

	dto := toDTO(order, user)
	dto.Payment = &PaymentResultDTO{TransactionID: txn.ID}
	return &dto, nil
}

func (s *service) validateInput(input CreateOrderInput) (enums.PaymentMethod, []inventory.Item, error) {
	if input.UserID <= 0 {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "user id must be positive")
	}
	method, ok := enums.ParsePaymentMethod(input.PaymentMethod)
	if !ok {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be credit_card, debit_card, or paypal")
	}
	if len(input.Items) == 0 {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	items := make([]inventory.Item, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID <= 0 {
			return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
		}
		if item.Quantity < 1 {
			return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		items = append(items, inventory.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return method, items, nil
}

func (s *service) priceItems(ctx context.Context, inputs []ItemInput) ([]models.OrderItem, decimal.Decimal, error) {
	ids := make([]int64, 0, len(inputs))
	for _, item := range inputs {
		ids = append(ids, item.ProductID)
	}

	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[int64]*models.Product, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	lines := make([]models.OrderItem, 0, len(inputs))
	total := decimal.Zero
	for _, item := range inputs {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		lines = append(lines, models.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return lines, total, nil
}

func (s *service) reserve(ctx context.Context, order *models.Order, items []inventory.Item) error {
	ctx, span := s.tele.Start(ctx, "inventory.reserve", attribute.Int64("order.id", order.ID))
	defer span.End()

	if err := s.inventory.Reserve(ctx, items); err != nil {
		s.tele.RecordError(ctx, err)
		s.logg.Error(ctx, "inventory reservation failed", err)
		if uerr := s.repo.UpdateStatus(ctx, order.ID, enums.OrderStatusFailed, order.PaymentStatus); uerr != nil {
			s.logg.Error(ctx, "mark order failed", uerr)
		}
		order.Status = enums.OrderStatusFailed
		s.dropCache(ctx, s.cache.UserOrdersKey(order.UserID))
		return err
	}

	for _, item := range items {
		s.tele.AddEvent(ctx, "inventory.reserved",
			attribute.Int64("product.id", item.ProductID),
			attribute.Int("quantity", item.Quantity),
		)
	}
	return nil
}

func (s *service) charge(ctx context.Context, order *models.Order, items []inventory.Item, total decimal.Decimal, method enums.PaymentMethod) (*payments.Transaction, error) {
	ctx, span := s.tele.Start(ctx, "payment.process",
		attribute.Int64("order.id", order.ID),
		attribute.String("payment.method", string(method)),
	)
	defer span.End()

	txn, err := s.gateway.Process(ctx, payments.Request{
		OrderID: order.ID,
		Amount:  total,
		Method:  method,
	})
	if err != nil {
		s.tele.RecordError(ctx, err)
		s.logg.Error(ctx, "payment failed", err)

		// Compensate: hand the stock back, then record the outcome on the
		// order row. The release is best-effort and never masks the
		// payment error.
		if rerr := s.inventory.Release(ctx, items); rerr != nil {
			s.logg.Error(ctx, "compensating inventory release failed", rerr)
		} else {
			for _, item := range items {
				s.tele.AddEvent(ctx, "inventory.released",
					attribute.Int64("product.id", item.ProductID),
					attribute.Int("quantity", item.Quantity),
				)
			}
		}
		if uerr := s.repo.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled, enums.PaymentStatusFailed); uerr != nil {
			s.logg.Error(ctx, "mark order cancelled", uerr)
		}
		order.Status = enums.OrderStatusCancelled
		order.PaymentStatus = enums.PaymentStatusFailed
		s.dropCache(ctx, s.cache.UserOrdersKey(order.UserID))
		return nil, err
	}

	s.tele.AddEvent(ctx, "payment.processed",
		attribute.Int64("order.id", order.ID),
		attribute.String("payment.transaction_id", txn.ID),
	)

	if err := s.repo.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, enums.PaymentStatusCompleted); err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		s.tele.RecordError(ctx, err)
		return nil, err
	}
	s.dropCache(ctx, s.cache.UserOrdersKey(order.UserID))
	return txn, nil
}

// GetOrder serves the order from cache when possible. Cache failures degrade
// to a direct store read.
func (s *service) GetOrder(ctx context.Context, id int64) (*OrderDTO, bool, error) {
	if id <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id must be positive")
	}

	ctx, span := s.tele.Start(ctx, "orders.get", attribute.Int64("order.id", id))
	defer span.End()

	key := s.cache.OrderKey(id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var dto OrderDTO
		if err := json.Unmarshal([]byte(raw), &dto); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &dto, true, nil
		}
		s.logg.Warn(ctx, "discarding unreadable order cache entry")
	} else if !errors.Is(err, pkgredis.Nil) {
		s.logg.Warn(ctx, "order cache read failed, falling back to store")
	}

	order, err := s.repo.FindWithItems(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order user")
	}

	dto := toDTO(order, user)
	if payload, err := json.Marshal(dto); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheCfg.OrderTTL); err != nil {
			s.logg.Warn(ctx, "order cache write failed")
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	return &dto, false, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID int64) ([]OrderSummaryDTO, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id must be positive")
	}

	ctx, span := s.tele.Start(ctx, "orders.list_by_user", attribute.Int64("user.id", userID))
	defer span.End()

	key := s.cache.UserOrdersKey(userID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var summaries []OrderSummaryDTO
		if err := json.Unmarshal([]byte(raw), &summaries); err == nil {
			return summaries, nil
		}
		s.logg.Warn(ctx, "discarding unreadable user orders cache entry")
	} else if !errors.Is(err, pkgredis.Nil) {
		s.logg.Warn(ctx, "user orders cache read failed, falling back to store")
	}

	summaries, err := s.repo.ListByUser(ctx, userID, maxUserOrders)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user orders")
	}

	if payload, err := json.Marshal(summaries); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheCfg.OrderTTL); err != nil {
			s.logg.Warn(ctx, "user orders cache write failed")
		}
	}
	return summaries, nil
}

func (s *service) dropCache(ctx context.Context, keys ...string) {
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logg.Warn(ctx, "cache invalidation failed")
	}
}
