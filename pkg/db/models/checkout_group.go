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

// CheckoutGroup is the record of one checkout event. Every per-vendor order
// created by that checkout references it through GroupID.
type CheckoutGroup struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code          string              `gorm:"column:code;not null;uniqueIndex"`
	OwnerID       uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	VendorIDs     dbtypes.UUIDArray   `gorm:"column:vendor_ids;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	ContactPhone  string              `gorm:"column:contact_phone;not null"`
	Address       types.Address       `gorm:"column:address;type:jsonb;serializer:json"`
	Bill          decimal.Decimal     `gorm:"column:bill;type:numeric(12,2);not null"`
	BillBefore    decimal.Decimal     `gorm:"column:bill_before;type:numeric(12,2);not null"`
	Orders        []Order             `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (g *CheckoutGroup) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}
