package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Order is one vendor's slice of a checkout group. Only Status and the status
// timestamps change after creation.
type Order struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	GroupID        uuid.UUID           `gorm:"column:group_id;type:uuid;not null;index"`
	Code           string              `gorm:"column:code;not null;uniqueIndex"`
	VendorIndex    int                 `gorm:"column:vendor_index;not null"`
	OwnerID        uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	VendorID       uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	Status         enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	ContactPhone   string              `gorm:"column:contact_phone;not null"`
	Address        types.Address       `gorm:"column:address;type:jsonb;serializer:json"`
	Bill           decimal.Decimal     `gorm:"column:bill;type:numeric(12,2);not null"`
	BillBefore     decimal.Decimal     `gorm:"column:bill_before;type:numeric(12,2);not null"`
	AppliedCoupons dbtypes.TextArray   `gorm:"column:applied_coupons"`
	Items          []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	OnWayAt        *time.Time          `gorm:"column:on_way_at"`
	ReceivedAt     *time.Time          `gorm:"column:received_at"`
	CancelledAt    *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
