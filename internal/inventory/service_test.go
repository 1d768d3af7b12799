package inventory

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shoptrace/shoptrace-api/pkg/db"
	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingCache struct {
	mu       sync.Mutex
	deleted  []string
	patterns []string
}

func (r *recordingCache) Del(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, keys...)
	return nil
}

func (r *recordingCache) DelPattern(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	return nil
}

func (r *recordingCache) ProductKey(productID int64) string {
	return "test:product:" + decimal.NewFromInt(productID).String()
}

func (r *recordingCache) ProductListPattern() string {
	return "test:product_list:*"
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	// Serialize access, in-memory sqlite does not tolerate concurrent writers.
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("migrate products: %v", err)
	}
	return conn
}

func seedProduct(t *testing.T, conn *gorm.DB, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           "SKU-" + uuid.NewString(),
		Name:          "Stocked Product",
		Price:         decimal.RequireFromString("25.00"),
		StockQuantity: stock,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func newTestService(t *testing.T, conn *gorm.DB) (Service, *recordingCache) {
	t.Helper()
	cache := &recordingCache{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error"), Output: io.Discard})
	svc, err := NewService(conn, db.FromGorm(conn), cache, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, cache
}

func stockOf(t *testing.T, conn *gorm.DB, id int64) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.StockQuantity
}

func TestReserveDecrementsStock(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, cache := newTestService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, 10)

	if err := svc.Reserve(ctx, []Item{{ProductID: product.ID, Quantity: 4}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := stockOf(t, conn, product.ID); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}
	if len(cache.deleted) == 0 || len(cache.patterns) == 0 {
		t.Fatal("expected cache invalidation after reserve")
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	plenty := seedProduct(t, conn, 10)
	scarce := seedProduct(t, conn, 1)

	err := svc.Reserve(ctx, []Item{
		{ProductID: plenty.ID, Quantity: 2},
		{ProductID: scarce.ID, Quantity: 5},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	details, ok := typed.Details().([]InsufficientItem)
	if !ok || len(details) != 1 {
		t.Fatalf("expected one offending item, got %#v", typed.Details())
	}
	if details[0].ProductID != scarce.ID || details[0].Requested != 5 || details[0].Available != 1 {
		t.Fatalf("unexpected detail: %+v", details[0])
	}

	// The rollback must undo the decrement that succeeded before the failure.
	if got := stockOf(t, conn, plenty.ID); got != 10 {
		t.Fatalf("expected stock 10 after rollback, got %d", got)
	}
	if got := stockOf(t, conn, scarce.ID); got != 1 {
		t.Fatalf("expected stock 1 after rollback, got %d", got)
	}
}

func TestReleaseRestoresStock(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, 8)

	if err := svc.Reserve(ctx, []Item{{ProductID: product.ID, Quantity: 8}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.Release(ctx, []Item{{ProductID: product.ID, Quantity: 8}}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := stockOf(t, conn, product.ID); got != 8 {
		t.Fatalf("expected stock restored to 8, got %d", got)
	}
}

func TestCheckAvailabilityReportsShortfalls(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	product := seedProduct(t, conn, 3)

	insufficient, err := svc.CheckAvailability(ctx, []Item{{ProductID: product.ID, Quantity: 3}})
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if len(insufficient) != 0 {
		t.Fatalf("expected no shortfall, got %+v", insufficient)
	}

	insufficient, err = svc.CheckAvailability(ctx, []Item{{ProductID: product.ID, Quantity: 4}})
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if len(insufficient) != 1 || insufficient[0].Available != 3 {
		t.Fatalf("expected shortfall of 1 item, got %+v", insufficient)
	}
}

func TestGetLevelMissingProduct(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)

	_, err := svc.GetLevel(context.Background(), 99999)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	for _, items := range [][]Item{
		nil,
		{{ProductID: 1, Quantity: 0}},
		{{ProductID: 0, Quantity: 1}},
	} {
		err := svc.Reserve(ctx, items)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %v, got %v", items, err)
		}
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	const stock = 10
	const perRequest = 3
	const workers = 8

	product := seedProduct(t, conn, stock)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Reserve(ctx, []Item{{ProductID: product.ID, Quantity: perRequest}})
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
			t.Fatalf("unexpected reservation error: %v", err)
		}
	}

	if want := stock / perRequest; successes != want {
		t.Fatalf("expected %d successful reservations, got %d", want, successes)
	}
	if got := stockOf(t, conn, product.ID); got != stock-successes*perRequest {
		t.Fatalf("unexpected final stock %d", got)
	}
	if got := stockOf(t, conn, product.ID); got < 0 {
		t.Fatalf("stock went negative: %d", got)
	}
}
