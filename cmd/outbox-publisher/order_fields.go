package main

import (
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// addOrderFields enriches publish logs with the order identifiers carried by
// each event type so a group can be traced across the topic.
func addOrderFields(fields map[string]any, payload any) {
	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		fields["group_id"] = p.GroupID.String()
		fields["group_code"] = p.Code
		fields["owner_id"] = p.OwnerID.String()
		fields["vendor_orders"] = len(p.Orders)
	case *payloads.OrderStatusChangedEvent:
		fields["group_id"] = p.GroupID.String()
		fields["order_id"] = p.OrderID.String()
		fields["vendor_id"] = p.VendorID.String()
		fields["status_from"] = string(p.From)
		fields["status_to"] = string(p.To)
	case *payloads.ReservationReleasedEvent:
		fields["group_id"] = p.GroupID.String()
		released := 0
		for _, line := range p.Lines {
			released += line.Quantity
		}
		fields["released_lines"] = len(p.Lines)
		fields["released_units"] = released
	}
}

// orderGroupID returns the checkout group an order event belongs to, or ""
// for payloads that carry none.
func orderGroupID(payload any) string {
	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		return p.GroupID.String()
	case *payloads.OrderStatusChangedEvent:
		return p.GroupID.String()
	case *payloads.ReservationReleasedEvent:
		return p.GroupID.String()
	}
	return ""
}
