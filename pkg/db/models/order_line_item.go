package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderLineItem captures the priced snapshot of each item within an order.
// Position keeps the cart line order.
type OrderLineItem struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	ItemID     uuid.UUID        `gorm:"column:item_id;type:uuid;not null"`
	Name       string           `gorm:"column:name;not null"`
	Price      decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	PriceAfter *decimal.Decimal `gorm:"column:price_after;type:numeric(12,2)"`
	Quantity   int              `gorm:"column:quantity;not null"`
	Position   int              `gorm:"column:position;not null;default:0"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
