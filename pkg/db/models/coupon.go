package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coupon is a percentage discount. A nil VendorID makes it store-wide.
type Coupon struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Code      string     `gorm:"column:code;not null;uniqueIndex"`
	Percent   int        `gorm:"column:percent;not null"`
	ValidFrom time.Time  `gorm:"column:valid_from;not null"`
	ExpireAt  time.Time  `gorm:"column:expire_at;not null"`
	VendorID  *uuid.UUID `gorm:"column:vendor_id;type:uuid;index"`
	CreatedBy uuid.UUID  `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// ActiveAt reports whether at falls inside [ValidFrom, ExpireAt].
func (c Coupon) ActiveAt(at time.Time) bool {
	return !at.Before(c.ValidFrom) && !at.After(c.ExpireAt)
}

// Covers reports whether the coupon applies to lines sold by vendorID.
func (c Coupon) Covers(vendorID uuid.UUID) bool {
	return c.VendorID == nil || *c.VendorID == vendorID
}
