package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/shoptrace/shoptrace-api/pkg/enums"
)

// Order is created pending and mutated only by the order workflow. Failed and
// cancelled rows are kept as the audit trail of what happened.
type Order struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID        int64               `gorm:"column:user_id;not null;index" json:"user_id"`
	Status        enums.OrderStatus   `gorm:"column:status;not null;default:'pending';index" json:"status"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null" json:"payment_method"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'" json:"payment_status"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
