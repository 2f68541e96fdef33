package checkout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/items"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemoryGuard() *memoryGuard { return &memoryGuard{keys: map[string]bool{}} }

func (g *memoryGuard) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) GuardKey(scope, id string) string { return "bz:guard:" + scope + ":" + id }

func (g *memoryGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		delete(g.keys, k)
	}
	return nil
}

type stubNotifier struct {
	groups []uuid.UUID
	err    error
}

func (n *stubNotifier) NotifyNewOrder(_ context.Context, group *models.CheckoutGroup) error {
	n.groups = append(n.groups, group.ID)
	return n.err
}

type fixture struct {
	client   *db.Client
	conn     *gorm.DB
	carts    *cart.Service
	svc      *Service
	guard    *memoryGuard
	notifier *stubNotifier
	metrics  *metrics.CheckoutMetrics
	reg      *prometheus.Registry
	logs     *bytes.Buffer
	buyer    types.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	cartRepo := cart.NewRepository(conn)
	cartSvc, err := cart.NewService(cartRepo, items.NewRepository(conn), coupons.NewRepository(conn), client, nil)
	require.NoError(t, err)

	f := &fixture{
		client:   client,
		conn:     conn,
		carts:    cartSvc,
		guard:    newMemoryGuard(),
		notifier: &stubNotifier{},
		reg:      prometheus.NewRegistry(),
		logs:     &bytes.Buffer{},
	}
	f.metrics = metrics.NewCheckoutMetrics(f.reg)
	cfg := config.CheckoutConfig{CodeGenerationRetries: 3, VendorNotifyTimeout: time.Second}
	f.svc, err = NewService(ServiceParams{
		Carts:    cartRepo,
		Users:    users.NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Ledger:   inventory.NewLedger(cfg, nil, f.metrics),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Tx:       client,
		Guard:    f.guard,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "checkout-test", Output: f.logs, Format: "json"}),
	})
	require.NoError(t, err)

	buyer := dbtest.CreateUser(t, conn, enums.UserRoleUser)
	f.buyer = types.Actor{UserID: buyer.ID, Role: buyer.Role}
	return f
}

func validInput() Input {
	return Input{
		PaymentMethod: enums.PaymentMethodCard,
		ContactPhone:  "+15551234567",
		Address:       types.Address{Line1: " 1 Main St ", City: "Springfield", Country: "us"},
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) outcomes(t *testing.T, result string) float64 {
	t.Helper()
	mfs, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "checkout_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCheckoutSplitsByVendor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1 := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	v2 := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	a := dbtest.CreateItem(t, f.conn, v1.ID, "A", "10.00", 10)
	b := dbtest.CreateItem(t, f.conn, v2.ID, "B", "7.50", 10)
	c := dbtest.CreateItem(t, f.conn, v1.ID, "C", "3.33", 10)
	require.NoError(t, f.conn.Create(&models.Coupon{
		Code: "V1TEN", Percent: 10, VendorID: &v1.ID, CreatedBy: v1.ID,
		ValidFrom: time.Now().Add(-time.Hour), ExpireAt: time.Now().Add(time.Hour),
	}).Error)

	_, err := f.carts.AddItem(ctx, f.buyer.UserID, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, b.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, c.ID, 3)
	require.NoError(t, err)
	priced, err := f.carts.ApplyCoupon(ctx, f.buyer.UserID, "V1TEN")
	require.NoError(t, err)

	group, err := f.svc.Checkout(ctx, f.buyer, validInput())
	require.NoError(t, err)

	require.Len(t, group.Orders, 2)
	assert.True(t, group.Bill.Equal(priced.Bill))
	assert.True(t, group.BillBefore.Equal(priced.BillBefore))
	assert.Equal(t, "1 Main St", group.Address.Line1)

	first, second := group.Orders[0], group.Orders[1]
	assert.Equal(t, v1.ID, first.VendorID)
	assert.Equal(t, group.Code+"-V1", first.Code)
	assert.Equal(t, group.Code+"-V2", second.Code)
	assert.Len(t, first.Items, 2)
	assert.Len(t, second.Items, 1)
	assert.Equal(t, "A", first.Items[0].Name)
	assert.Equal(t, "C", first.Items[1].Name)
	assert.Less(t, first.Items[0].Position, first.Items[1].Position)
	assert.Equal(t, []string{"V1TEN"}, []string(first.AppliedCoupons))
	assert.Empty(t, second.AppliedCoupons)
	// 2×9.00 + 3×3.00
	assert.Equal(t, "27.00", first.Bill.StringFixed(2))
	assert.Equal(t, "7.50", second.Bill.StringFixed(2))
	assert.True(t, first.Bill.Add(second.Bill).Equal(priced.Bill))
	for _, o := range group.Orders {
		assert.Equal(t, group.ID, o.GroupID)
		assert.Equal(t, enums.OrderStatusPending, o.Status)
	}

	assert.Equal(t, 8, dbtest.Stock(t, f.conn, a.ID))
	assert.Equal(t, 9, dbtest.Stock(t, f.conn, b.ID))
	assert.Equal(t, 7, dbtest.Stock(t, f.conn, c.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Cart{}))
	assert.Equal(t, int64(0), f.count(t, &models.CartItem{}))
	assert.Equal(t, int64(2), f.count(t, &models.Order{}))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, group.ID, events[0].AggregateID)

	assert.Equal(t, []uuid.UUID{group.ID}, f.notifier.groups)
	assert.Empty(t, f.guard.keys, "guard released")
}

func TestCheckoutShortfallRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	plenty := dbtest.CreateItem(t, f.conn, vendor.ID, "Plenty", "1.00", 50)
	scarce := dbtest.CreateItem(t, f.conn, vendor.ID, "Scarce", "2.00", 6)

	_, err := f.carts.AddItem(ctx, f.buyer.UserID, plenty.ID, 4)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, scarce.ID, 6)
	require.NoError(t, err)
	// Stock drops to 5 after the line was added.
	require.NoError(t, f.conn.Model(&models.Item{}).Where("id = ?", scarce.ID).Update("quantity", 5).Error)

	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
	assert.Equal(t, pkgerrors.KindConflict, typed.Kind())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, scarce.ID.String(), details["item_id"])

	assert.Equal(t, 50, dbtest.Stock(t, f.conn, plenty.ID))
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, scarce.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.CheckoutGroup{}))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, int64(1), f.count(t, &models.Cart{}), "cart kept for retry")
	assert.Empty(t, f.notifier.groups)
	assert.Equal(t, 1.0, f.outcomes(t, metrics.ResultOutOfStock))
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, f.buyer, validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "1.00", 5)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.RemoveItem(ctx, f.buyer.UserID, item.ID)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
}

func TestCheckoutValidatesInput(t *testing.T) {
	f := newFixture(t)
	for name, mutate := range map[string]func(*Input){
		"payment": func(in *Input) { in.PaymentMethod = "barter" },
		"phone":   func(in *Input) { in.ContactPhone = "555" },
		"address": func(in *Input) { in.Address.City = "  " },
	} {
		in := validInput()
		mutate(&in)
		_, err := f.svc.Checkout(context.Background(), f.buyer, in)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestCheckoutRejectsVendorThatCannotSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "1.00", 5)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", vendor.ID).Update("role", enums.UserRoleUser).Error)

	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, item.ID))
}

func TestCheckoutDeletedItemIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	kept := dbtest.CreateItem(t, f.conn, vendor.ID, "Kept", "1.00", 5)
	gone := dbtest.CreateItem(t, f.conn, vendor.ID, "Gone", "1.00", 5)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, kept.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.buyer.UserID, gone.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Delete(&models.Item{}, "id = ?", gone.ID).Error)

	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, kept.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
}

func TestCheckoutGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "1.00", 5)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 1)
	require.NoError(t, err)

	key := f.guard.GuardKey(guardScope, f.buyer.UserID.String())
	f.guard.keys[key] = true
	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency))
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, item.ID))
	assert.True(t, f.guard.keys[key], "another attempt's guard is left alone")

	delete(f.guard.keys, key)
	f.guard.err = errors.New("redis down")
	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	assert.NoError(t, err, "an unavailable guard does not block checkout")
}

func TestCheckoutNotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("mailer down")
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "1.00", 5)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 1)
	require.NoError(t, err)

	group, err := f.svc.Checkout(ctx, f.buyer, validInput())
	require.NoError(t, err)
	assert.Len(t, f.notifier.groups, 1)
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, 4, dbtest.Stock(t, f.conn, item.ID))
	assert.NotEmpty(t, group.Code)
}

func TestCheckoutRetriesCodeCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "1.00", 5)
	require.NoError(t, f.conn.Create(&models.CheckoutGroup{
		Code: "20261019-TAKEN", OwnerID: uuid.New(), PaymentMethod: enums.PaymentMethodCash, ContactPhone: "+15550000000",
	}).Error)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 1)
	require.NoError(t, err)

	codes := []string{"20261019-TAKEN", "20261019-FRESH"}
	f.svc.newCode = func(time.Time) string {
		next := codes[0]
		codes = codes[1:]
		return next
	}

	group, err := f.svc.Checkout(ctx, f.buyer, validInput())
	require.NoError(t, err)
	assert.Equal(t, "20261019-FRESH", group.Code)
	assert.Equal(t, "20261019-FRESH-V1", group.Orders[0].Code)
	assert.Equal(t, int64(2), f.count(t, &models.CheckoutGroup{}))
}

func TestShoesCheckoutThroughDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	admin := dbtest.CreateUser(t, f.conn, enums.UserRoleAdmin)
	shoes := dbtest.CreateItem(t, f.conn, vendor.ID, "Shoes", "50.00", 10)
	require.NoError(t, f.conn.Create(&models.Coupon{
		Code: "SAVE10", Percent: 10, CreatedBy: admin.ID,
		ValidFrom: time.Now().Add(-time.Hour), ExpireAt: time.Now().Add(time.Hour),
	}).Error)

	_, err := f.carts.AddItem(ctx, f.buyer.UserID, shoes.ID, 2)
	require.NoError(t, err)
	c, err := f.carts.ApplyCoupon(ctx, f.buyer.UserID, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "45.00", c.Items[0].PriceAfter.StringFixed(2))
	assert.Equal(t, "90.00", c.Bill.StringFixed(2))
	assert.Equal(t, "100.00", c.BillBefore.StringFixed(2))

	group, err := f.svc.Checkout(ctx, f.buyer, validInput())
	require.NoError(t, err)
	require.Len(t, group.Orders, 1)
	assert.Equal(t, enums.OrderStatusPending, group.Orders[0].Status)
	assert.Equal(t, "90.00", group.Orders[0].Bill.StringFixed(2))
	assert.True(t, strings.HasSuffix(group.Orders[0].Code, "-V1"))

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(f.conn),
		Tx:     f.client,
		Ledger: inventory.NewLedger(config.CheckoutConfig{}, nil, nil),
		Outbox: outbox.NewService(outbox.NewRepository(f.conn), nil),
	})
	require.NoError(t, err)
	adminActor := types.Actor{UserID: admin.ID, Role: admin.Role}

	_, err = orderSvc.MarkOnWay(ctx, adminActor, group.ID)
	require.NoError(t, err)
	done, err := orderSvc.MarkReceived(ctx, adminActor, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReceived, done.Orders[0].Status)

	_, err = orderSvc.MarkReceived(ctx, adminActor, group.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 8, dbtest.Stock(t, f.conn, shoes.ID))
}

func TestCheckoutLogsStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := dbtest.CreateUser(t, f.conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, f.conn, vendor.ID, "A", "5.00", 4)
	_, err := f.carts.AddItem(ctx, f.buyer.UserID, item.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.conn.Migrator().DropTable(&models.CheckoutGroup{}))

	_, err = f.svc.Checkout(ctx, f.buyer, validInput())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)
	assert.Equal(t, 4, dbtest.Stock(t, f.conn, item.ID))
	assert.Equal(t, float64(1), f.outcomes(t, metrics.ResultFailure))

	logs := f.logs.String()
	assert.Contains(t, logs, "checkout failed")
	assert.Contains(t, logs, `"error_code":"DEPENDENCY_ERROR"`)
	assert.Contains(t, logs, "error_chain")
}

func TestCheckoutBusinessFailureIsNotLoggedAsError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), f.buyer, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.NotContains(t, f.logs.String(), "checkout failed")
}
