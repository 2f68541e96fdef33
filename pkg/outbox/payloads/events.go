package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderRef summarises one per-vendor order inside a checkout group.
type OrderRef struct {
	OrderID  uuid.UUID `json:"order_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Code     string    `json:"code"`
	Bill     string    `json:"bill"`
}

// OrderCreatedEvent signals a new checkout split across vendors.
type OrderCreatedEvent struct {
	GroupID uuid.UUID  `json:"group_id"`
	Code    string     `json:"code"`
	OwnerID uuid.UUID  `json:"owner_id"`
	Bill    string     `json:"bill"`
	Orders  []OrderRef `json:"orders"`
}

// OrderStatusChangedEvent is emitted for every order moved by a transition.
type OrderStatusChangedEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	GroupID  uuid.UUID         `json:"group_id"`
	OwnerID  uuid.UUID         `json:"owner_id"`
	VendorID uuid.UUID         `json:"vendor_id"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
	At       time.Time         `json:"at"`
}

// ReleasedLine is one stock increment performed on cancellation.
type ReleasedLine struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// ReservationReleasedEvent reports stock returned after a group cancel.
type ReservationReleasedEvent struct {
	GroupID uuid.UUID      `json:"group_id"`
	Lines   []ReleasedLine `json:"lines"`
}
