package orders

import (
	"context"
	"time"

	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	"github.com/shoptrace/shoptrace-api/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository exposes order persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an orders repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to a transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CreateWithItems inserts the order and its line items in one statement batch.
func (r *Repository) CreateWithItems(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindWithItems loads an order with its line items preloaded.
func (r *Repository) FindWithItems(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus records a lifecycle transition on an existing order row.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status enums.OrderStatus, paymentStatus enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         status,
			"payment_status": paymentStatus,
			"updated_at":     time.Now().UTC(),
		}).Error
}

type userOrderRow struct {
	ID            int64               `gorm:"column:id"`
	Status        enums.OrderStatus   `gorm:"column:status"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status"`
	ItemCount     int                 `gorm:"column:item_count"`
	CreatedAt     time.Time           `gorm:"column:created_at"`
}

// ListByUser returns the user's most recent orders with their item counts.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]OrderSummaryDTO, error) {
	var rows []userOrderRow
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.id, orders.status, orders.total_amount, orders.payment_status, orders.created_at, COUNT(order_items.id) AS item_count").
		Joins("LEFT JOIN order_items ON order_items.order_id = orders.id").
		Where("orders.user_id = ?", userID).
		Group("orders.id").
		Order("orders.created_at DESC, orders.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]OrderSummaryDTO, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, OrderSummaryDTO{
			ID:            row.ID,
			Status:        row.Status,
			TotalAmount:   row.TotalAmount,
			PaymentStatus: row.PaymentStatus,
			ItemCount:     row.ItemCount,
			CreatedAt:     row.CreatedAt,
		})
	}
	return summaries, nil
}
