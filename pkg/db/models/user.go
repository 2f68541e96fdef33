package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// User represents the canonical identity entity.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email     string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name      string         `gorm:"column:name;not null"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// VendorRequest is a user's application to become a vendor.
type VendorRequest struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	Status    enums.VendorRequestStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Note      *string                   `gorm:"column:note"`
	DecidedBy *uuid.UUID                `gorm:"column:decided_by;type:uuid"`
	DecidedAt *time.Time                `gorm:"column:decided_at"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (r *VendorRequest) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
