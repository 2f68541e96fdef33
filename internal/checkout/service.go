package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/angelmondragon/bazaar-backend/pkg/validators"
)

const (
	guardScope    = "checkout"
	codeSavepoint = "checkout_code"
)

// Input carries the buyer-supplied checkout fields.
type Input struct {
	PaymentMethod enums.PaymentMethod `json:"paymentMethod" validate:"required,oneof=cash card wallet"`
	ContactPhone  string              `json:"contactPhone" validate:"required,e164"`
	Address       types.Address       `json:"address"`
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// vendorNotifier tells each vendor about its new order once checkout commits.
type vendorNotifier interface {
	NotifyNewOrder(ctx context.Context, group *models.CheckoutGroup) error
}

type outcomeRecorder interface {
	Observe(result string, elapsed time.Duration)
}

type ServiceParams struct {
	Carts    *cart.Repository
	Users    *users.Repository
	Orders   *orders.Repository
	Ledger   stockReserver
	Outbox   outboxPublisher
	Tx       db.TxRunner
	Guard    redis.GuardStore
	Notifier vendorNotifier
	Metrics  outcomeRecorder
	Config   config.CheckoutConfig
	Logger   *logger.Logger
}

// Service turns a cart into a checkout group with one order per vendor.
type Service struct {
	carts    *cart.Repository
	users    *users.Repository
	orders   *orders.Repository
	ledger   stockReserver
	outbox   outboxPublisher
	tx       db.TxRunner
	guard    redis.GuardStore
	notifier vendorNotifier
	metrics  outcomeRecorder
	cfg      config.CheckoutConfig
	logg     *logger.Logger
	now      func() time.Time
	newCode  func(time.Time) string
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if p.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Service{
		carts:    p.Carts,
		users:    p.Users,
		orders:   p.Orders,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
		tx:       p.Tx,
		guard:    p.Guard,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		cfg:      p.Config,
		logg:     p.Logger,
		now:      time.Now,
		newCode:  NewCode,
	}, nil
}

// Checkout reserves stock for the whole cart and writes the group, its
// vendor orders and the order_created event in one transaction, then
// deletes the cart. Vendor notification happens after commit and never
// fails the checkout.
func (s *Service) Checkout(ctx context.Context, actor types.Actor, input Input) (group *models.CheckoutGroup, err error) {
	started := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.Observe(outcome(err), s.now().Sub(started))
		}
		if dump := pkgerrors.Dump(err); dump.Unexpected() {
			s.logg.Error(s.logg.WithFields(ctx, dump.Fields()), "checkout failed", err)
		}
	}()

	input.Address = input.Address.Normalize()
	if err := validators.Struct(input); err != nil {
		return nil, err
	}

	ctx = s.logg.WithField(ctx, "owner_id", actor.UserID.String())
	release, err := s.acquireGuard(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		c, err := carts.FindByOwner(ctx, actor.UserID, true)
		if errors.Is(err, cart.ErrCartNotFound) || (err == nil && len(c.Items) == 0) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart empty")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		slices := splitByVendor(c.Items)
		if err := s.verifyVendors(ctx, tx, slices); err != nil {
			return err
		}
		if err := s.ledger.Reserve(ctx, tx, reserveLines(c.Items)); err != nil {
			return err
		}

		group, err = s.insertGroup(ctx, tx, func(code string) *models.CheckoutGroup {
			return buildGroup(code, actor.UserID, c, slices, input)
		})
		if err != nil {
			return err
		}
		if err := s.emitCreated(ctx, tx, actor, group); err != nil {
			return err
		}
		if err := carts.Delete(ctx, c.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderGroupID(ctx, group.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"code":    group.Code,
		"orders":  len(group.Orders),
		"bill":    group.Bill.StringFixed(2),
		"payment": string(group.PaymentMethod),
	}), "checkout committed")

	s.notifyVendors(ctx, group)
	return group, nil
}

// acquireGuard takes the per-owner double-submit key. A redis failure is
// logged and the checkout proceeds unguarded.
func (s *Service) acquireGuard(ctx context.Context, ownerID uuid.UUID) (func(), error) {
	noop := func() {}
	if s.guard == nil {
		return noop, nil
	}
	key := s.guard.GuardKey(guardScope, ownerID.String())
	ttl := s.cfg.GuardTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ok, err := s.guard.SetNX(ctx, key, "1", ttl)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout guard unavailable")
		return noop, nil
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "checkout already in progress")
	}
	return func() {
		if err := s.guard.Del(context.WithoutCancel(ctx), key); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout guard release failed")
		}
	}, nil
}

// verifyVendors rejects carts whose vendors were removed or can no longer sell.
func (s *Service) verifyVendors(ctx context.Context, tx *gorm.DB, slices []vendorSlice) error {
	ids := make([]uuid.UUID, 0, len(slices))
	for _, slice := range slices {
		ids = append(ids, slice.VendorID)
	}
	vendors, err := s.users.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
	}
	for _, id := range ids {
		vendor, ok := vendors[id]
		if !ok || !vendor.Role.CanSell() {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor no longer available").
				WithDetails(map[string]any{"vendor_id": id.String()})
		}
	}
	return nil
}

// insertGroup writes the group under a fresh code, retrying with a new code
// when the code collides with an existing group.
func (s *Service) insertGroup(ctx context.Context, tx *gorm.DB, build func(code string) *models.CheckoutGroup) (*models.CheckoutGroup, error) {
	repo := s.orders.WithTx(tx)
	var group *models.CheckoutGroup
	backoff := retry.WithMaxRetries(s.cfg.CodeGenerationRetries, retry.NewConstant(5*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		group = build(s.newCode(s.now()))
		if err := tx.SavePoint(codeSavepoint).Error; err != nil {
			return err
		}
		if err := repo.CreateGroup(ctx, group); err != nil {
			if rbErr := tx.RollbackTo(codeSavepoint).Error; rbErr != nil {
				return multierr.Append(err, rbErr)
			}
			if db.IsUniqueViolation(err, "") {
				s.logg.Debug(s.logg.WithField(ctx, "code", group.Code), "checkout code collision")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a checkout code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create orders")
	}
	return group, nil
}

func (s *Service) emitCreated(ctx context.Context, tx *gorm.DB, actor types.Actor, group *models.CheckoutGroup) error {
	event := payloads.OrderCreatedEvent{
		GroupID: group.ID,
		Code:    group.Code,
		OwnerID: group.OwnerID,
		Bill:    group.Bill.StringFixed(2),
		Orders:  make([]payloads.OrderRef, 0, len(group.Orders)),
	}
	for _, order := range group.Orders {
		event.Orders = append(event.Orders, payloads.OrderRef{
			OrderID:  order.ID,
			VendorID: order.VendorID,
			Code:     order.Code,
			Bill:     order.Bill.StringFixed(2),
		})
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateCheckoutGroup,
		AggregateID:   group.ID,
		Actor:         outbox.ActorFrom(actor),
		Data:          event,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
	}
	return nil
}

func (s *Service) notifyVendors(ctx context.Context, group *models.CheckoutGroup) {
	if s.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	if s.cfg.VendorNotifyTimeout > 0 {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(notifyCtx, s.cfg.VendorNotifyTimeout)
		defer cancel()
	}
	if err := s.notifier.NotifyNewOrder(notifyCtx, group); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "vendor notification failed")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
		return metrics.ResultOutOfStock
	case pkgerrors.IsCode(err, pkgerrors.CodeIdempotency):
		return metrics.ResultInProgress
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return metrics.ResultValidation
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultFailure
	}
}
