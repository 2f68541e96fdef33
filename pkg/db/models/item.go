package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
)

// Item is a sellable catalog entry with its on-hand stock counter.
// Version is bumped on every stock write.
type Item struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	VendorID  uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name      string            `gorm:"column:name;not null"`
	SKU       *string           `gorm:"column:sku"`
	Category  string            `gorm:"column:category;not null;default:''"`
	Brand     string            `gorm:"column:brand;not null;default:''"`
	Images    dbtypes.TextArray `gorm:"column:images"`
	Price     decimal.Decimal   `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity  int               `gorm:"column:quantity;not null;default:0"`
	Version   int64             `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
