package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/items"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Params carries the infrastructure the domain services are built on.
// Redis and Registerer are optional: without redis the checkout guard is
// disabled, without a registerer metrics are dropped.
type Params struct {
	Config     *config.Config
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
	Logger     *logger.Logger
}

// Services is the core surface a transport layer drives.
type Services struct {
	Items         *items.Service
	Users         *users.Service
	Coupons       *coupons.Service
	Cart          *cart.Service
	Checkout      *checkout.Service
	Orders        *orders.Service
	Notifications *notifications.Service
	Ledger        *inventory.Ledger
}

// Build wires every domain service against one database client.
func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	conn := p.DB.DB()

	itemRepo := items.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	checkoutMetrics := metrics.NewCheckoutMetrics(p.Registerer)
	transitionMetrics := metrics.NewOrderTransitionMetrics(p.Registerer)
	ledger := inventory.NewLedger(p.Config.Checkout, logg, checkoutMetrics)

	itemSvc, err := items.NewService(itemRepo)
	if err != nil {
		return nil, fmt.Errorf("items service: %w", err)
	}
	userSvc, err := users.NewService(userRepo, p.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	couponSvc, err := coupons.NewService(couponRepo, logg)
	if err != nil {
		return nil, fmt.Errorf("coupons service: %w", err)
	}
	cartSvc, err := cart.NewService(cartRepo, itemRepo, couponRepo, p.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	notifySvc, err := notifications.NewService(notifications.NewRepository(conn), p.Config.Checkout.VendorNotifyTimeout, logg)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	var guard redis.GuardStore
	if p.Redis != nil {
		guard = p.Redis
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Carts:    cartRepo,
		Users:    userRepo,
		Orders:   orderRepo,
		Ledger:   ledger,
		Outbox:   events,
		Tx:       p.DB,
		Guard:    guard,
		Notifier: notifySvc,
		Metrics:  checkoutMetrics,
		Config:   p.Config.Checkout,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Tx:       p.DB,
		Ledger:   ledger,
		Outbox:   events,
		Notifier: notifySvc,
		Metrics:  transitionMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	return &Services{
		Items:         itemSvc,
		Users:         userSvc,
		Coupons:       couponSvc,
		Cart:          cartSvc,
		Checkout:      checkoutSvc,
		Orders:        orderSvc,
		Notifications: notifySvc,
		Ledger:        ledger,
	}, nil
}
