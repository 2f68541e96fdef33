package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// dev and tests.
func All() []any {
	return []any{
		&User{},
		&VendorRequest{},
		&Item{},
		&Coupon{},
		&Cart{},
		&CartItem{},
		&CheckoutGroup{},
		&Order{},
		&OrderLineItem{},
		&Notification{},
		&OutboxEvent{},
	}
}
