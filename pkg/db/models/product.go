package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a purchasable listing. StockQuantity never goes negative; the
// conditional decrement in the inventory service is the authoritative guard.
type Product struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SKU           string          `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0" json:"stock_quantity"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
