package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shoptrace/shoptrace-api/api/controllers"
	"github.com/shoptrace/shoptrace-api/internal/inventory"
	"github.com/shoptrace/shoptrace-api/internal/orders"
	"github.com/shoptrace/shoptrace-api/internal/payments"
	"github.com/shoptrace/shoptrace-api/internal/products"
	"github.com/shoptrace/shoptrace-api/internal/users"
	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/db"
	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"github.com/shoptrace/shoptrace-api/pkg/metrics"
	pkgredis "github.com/shoptrace/shoptrace-api/pkg/redis"
	"github.com/shoptrace/shoptrace-api/pkg/telemetry"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (c *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.entries[key] = string(v)
	case string:
		c.entries[key] = v
	}
	return nil
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return raw, nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *memoryCache) DelPattern(ctx context.Context, pattern string) error {
	return nil
}

func (c *memoryCache) OrderKey(orderID int64) string {
	return "test:order:" + strconv.FormatInt(orderID, 10)
}

func (c *memoryCache) UserOrdersKey(userID int64) string {
	return "test:user_orders:" + strconv.FormatInt(userID, 10)
}

func (c *memoryCache) ProductKey(productID int64) string {
	return "test:product:" + strconv.FormatInt(productID, 10)
}

func (c *memoryCache) ProductListKey(page, limit int) string {
	return fmt.Sprintf("test:product_list:%d:%d", page, limit)
}

func (c *memoryCache) ProductListPattern() string {
	return "test:product_list:*"
}

type stubGateway struct {
	decline bool
}

func (g *stubGateway) Process(ctx context.Context, req payments.Request) (*payments.Transaction, error) {
	if g.decline {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "charge declined by processor").
			WithDetails(payments.DeclineDetail{Reason: "card_declined"})
	}
	return &payments.Transaction{ID: "txn_" + uuid.NewString(), OrderID: req.OrderID, Amount: req.Amount, Method: req.Method}, nil
}

func (g *stubGateway) Verify(ctx context.Context, transactionID string) (bool, error) {
	return true, nil
}

func (g *stubGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	return nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type testAPI struct {
	handler http.Handler
	conn    *gorm.DB
	gateway *stubGateway
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithPingers(t, stubPinger{}, stubPinger{})
}

func newTestAPIWithPingers(t *testing.T, store, cachePinger controllers.Pinger) *testAPI {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&models.User{}, &models.Product{}, &models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache := newMemoryCache()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error"), Output: io.Discard})
	runner := db.FromGorm(conn)
	cacheCfg := config.CacheConfig{OrderTTL: time.Minute, ProductTTL: time.Minute, ProductListTTL: time.Minute}

	inv, err := inventory.NewService(conn, runner, cache, logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}

	gateway := &stubGateway{}
	ordersSvc, err := orders.NewService(
		orders.NewRepository(conn),
		runner,
		users.NewRepository(conn),
		products.NewRepository(conn),
		inv,
		gateway,
		cache,
		cacheCfg,
		telemetry.Noop(),
		logg,
	)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}

	productsSvc, err := products.NewService(products.NewRepository(conn), cache, cacheCfg, logg)
	if err != nil {
		t.Fatalf("products service: %v", err)
	}

	registry := prometheus.NewRegistry()
	cfg := &config.Config{}
	cfg.App.Env = "test"

	handler := NewRouter(Deps{
		Config:       cfg,
		Logger:       logg,
		Telemetry:    telemetry.Noop(),
		HTTPMetrics:  metrics.NewHTTPMetrics(registry),
		PromRegistry: registry,
		Store:        store,
		Cache:        cachePinger,
		Orders:       ordersSvc,
		Products:     productsSvc,
	})

	return &testAPI{handler: handler, conn: conn, gateway: gateway}
}

func (a *testAPI) seedUser(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{Email: fmt.Sprintf("buyer_%s@example.com", uuid.NewString()), Name: "Buyer"}
	if err := a.conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (a *testAPI) seedProduct(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           "SKU-" + uuid.NewString(),
		Name:          "Test Product",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	if err := a.conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := decodeEnvelope(t, rec)
	errObj, ok := envelope["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %q", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestCreateOrderEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	user := api.seedUser(t)
	product := api.seedProduct(t, "129.99", 50)

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"userId":        user.ID,
		"items":         []map[string]any{{"productId": product.ID, "quantity": 2}},
		"paymentMethod": "credit_card",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data envelope, got %q", rec.Body.String())
	}
	if data["status"] != "confirmed" {
		t.Fatalf("expected confirmed order, got %v", data["status"])
	}
	if data["total_amount"] != "259.98" {
		t.Fatalf("expected exact decimal total, got %v", data["total_amount"])
	}
	payment, ok := data["payment"].(map[string]any)
	if !ok || payment["transaction_id"] == "" {
		t.Fatalf("expected payment result, got %v", data["payment"])
	}
	owner, ok := data["user"].(map[string]any)
	if !ok || owner["email"] != user.Email {
		t.Fatalf("expected owning user on the order, got %v", data["user"])
	}
}

func TestCreateOrderInsufficientInventoryEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	user := api.seedUser(t)
	product := api.seedProduct(t, "25.00", 50)

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"userId":        user.ID,
		"items":         []map[string]any{{"productId": product.ID, "quantity": 10000}},
		"paymentMethod": "credit_card",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_INVENTORY" {
		t.Fatalf("expected INSUFFICIENT_INVENTORY, got %s", code)
	}

	envelope := decodeEnvelope(t, rec)
	errObj := envelope["error"].(map[string]any)
	if errObj["details"] == nil {
		t.Fatal("expected offending items in details")
	}

	var reloaded models.Product
	if err := api.conn.First(&reloaded, product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.StockQuantity != 50 {
		t.Fatalf("stock must be untouched, got %d", reloaded.StockQuantity)
	}
}

func TestCreateOrderPaymentDeclinedEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.gateway.decline = true
	user := api.seedUser(t)
	product := api.seedProduct(t, "99.00", 10)

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"userId":        user.ID,
		"items":         []map[string]any{{"productId": product.ID, "quantity": 1}},
		"paymentMethod": "debit_card",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "PAYMENT_FAILED" {
		t.Fatalf("expected PAYMENT_FAILED, got %s", code)
	}
}

func TestCreateOrderValidationEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"userId":        1,
		"items":         []map[string]any{},
		"paymentMethod": "credit_card",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestGetOrderEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	user := api.seedUser(t)
	product := api.seedProduct(t, "10.00", 10)

	created := api.do(t, http.MethodPost, "/orders", map[string]any{
		"userId":        user.ID,
		"items":         []map[string]any{{"productId": product.ID, "quantity": 1}},
		"paymentMethod": "paypal",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create failed: %s", created.Body.String())
	}
	data := decodeEnvelope(t, created)["data"].(map[string]any)
	orderID := int64(data["id"].(float64))

	first := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	firstData := decodeEnvelope(t, first)["data"].(map[string]any)
	if firstData["cached"] != false {
		t.Fatalf("first read must not be cached: %v", firstData["cached"])
	}

	second := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil)
	secondData := decodeEnvelope(t, second)["data"].(map[string]any)
	if secondData["cached"] != true {
		t.Fatalf("second read must be cached: %v", secondData["cached"])
	}
}

func TestGetOrderNotFoundEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/orders/99999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestListUserOrdersEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	user := api.seedUser(t)
	product := api.seedProduct(t, "5.00", 100)

	for i := 0; i < 2; i++ {
		rec := api.do(t, http.MethodPost, "/orders", map[string]any{
			"userId":        user.ID,
			"items":         []map[string]any{{"productId": product.ID, "quantity": 1}},
			"paymentMethod": "credit_card",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create failed: %s", rec.Body.String())
		}
	}

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/orders/user/%d", user.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	list, ok := data["orders"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2 orders, got %v", data["orders"])
	}
	summary := list[0].(map[string]any)
	if summary["item_count"] != float64(1) {
		t.Fatalf("expected item count 1, got %v", summary["item_count"])
	}
}

func TestProductEndpoints(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	product := api.seedProduct(t, "399.00", 25)

	rec := api.do(t, http.MethodGet, "/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["total"] != float64(1) {
		t.Fatalf("expected total 1, got %v", data["total"])
	}

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/products/%d", product.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/products/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	degraded := newTestAPIWithPingers(t, stubPinger{}, stubPinger{err: errors.New("redis down")})
	rec = degraded.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	// Generate one observable request first.
	api.do(t, http.MethodGet, "/health", nil)

	rec := api.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected metrics exposition output")
	}
}
