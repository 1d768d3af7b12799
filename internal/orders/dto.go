package orders

import (
	"time"

	"github.com/shoptrace/shoptrace-api/pkg/db/models"
	"github.com/shoptrace/shoptrace-api/pkg/enums"
	"github.com/shopspring/decimal"
)

// ItemInput is one requested line in an order creation payload.
type ItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderInput is the validated payload for creating an order.
type CreateOrderInput struct {
	UserID        int64       `json:"userId" validate:"required,gt=0"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string      `json:"paymentMethod" validate:"required,oneof=credit_card debit_card paypal"`
}

// OrderItemDTO is the public shape of a persisted order line.
type OrderItemDTO struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// PaymentResultDTO surfaces the gateway outcome on a hydrated order.
type PaymentResultDTO struct {
	TransactionID string `json:"transaction_id"`
}

// OrderUserDTO is the owning user joined onto a hydrated order.
type OrderUserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OrderDTO is the hydrated order returned by the API.
type OrderDTO struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"user_id"`
	User          *OrderUserDTO       `json:"user,omitempty"`
	Status        enums.OrderStatus   `json:"status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Items         []OrderItemDTO      `json:"items"`
	Payment       *PaymentResultDTO   `json:"payment,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// OrderSummaryDTO is one row in a user's order history.
type OrderSummaryDTO struct {
	ID            int64               `json:"id"`
	Status        enums.OrderStatus   `json:"status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toDTO(m *models.Order, user *models.User) OrderDTO {
	dto := OrderDTO{
		ID:            m.ID,
		UserID:        m.UserID,
		Status:        m.Status,
		TotalAmount:   m.TotalAmount,
		PaymentMethod: m.PaymentMethod,
		PaymentStatus: m.PaymentStatus,
		Items:         make([]OrderItemDTO, 0, len(m.Items)),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if user != nil {
		dto.User = &OrderUserDTO{ID: user.ID, Email: user.Email, Name: user.Name}
	}
	for _, item := range m.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return dto
}
