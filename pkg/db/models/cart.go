package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Cart is the single active basket of an owner. Bill and BillBefore are
// always derived from Items.
type Cart struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;uniqueIndex"`
	AppliedCoupons dbtypes.TextArray `gorm:"column:applied_coupons"`
	Bill           decimal.Decimal   `gorm:"column:bill;type:numeric(12,2);not null;default:0"`
	BillBefore     decimal.Decimal   `gorm:"column:bill_before;type:numeric(12,2);not null;default:0"`
	Items          []CartItem        `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem snapshots an item at add time. Discounts lists the coupons folded
// into PriceAfter, oldest first.
type CartItem struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CartID     uuid.UUID              `gorm:"column:cart_id;type:uuid;not null;index"`
	ItemID     uuid.UUID              `gorm:"column:item_id;type:uuid;not null"`
	VendorID   uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null"`
	Position   int                    `gorm:"column:position;not null"`
	Name       string                 `gorm:"column:name;not null"`
	Category   string                 `gorm:"column:category;not null;default:''"`
	Brand      string                 `gorm:"column:brand;not null;default:''"`
	Images     dbtypes.TextArray      `gorm:"column:images"`
	Price      decimal.Decimal        `gorm:"column:price;type:numeric(12,2);not null"`
	PriceAfter *decimal.Decimal       `gorm:"column:price_after;type:numeric(12,2)"`
	Discounts  types.AppliedDiscounts `gorm:"column:discounts;type:jsonb;serializer:json"`
	Quantity   int                    `gorm:"column:quantity;not null"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// EffectivePrice is PriceAfter when set, else Price.
func (i CartItem) EffectivePrice() decimal.Decimal {
	if i.PriceAfter != nil {
		return *i.PriceAfter
	}
	return i.Price
}
