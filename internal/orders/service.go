package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type stockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, lines []inventory.Line) ([]inventory.Line, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// statusNotifier tells vendors about a group transition after commit.
type statusNotifier interface {
	NotifyStatusChange(ctx context.Context, group *models.CheckoutGroup, moved []models.Order, to enums.OrderStatus) error
}

type transitionRecorder interface {
	Inc(to, result string)
}

// Service applies order status transitions. Transitions act on a whole
// checkout group except the admin-only single-order on-way.
type Service struct {
	repo     *Repository
	tx       db.TxRunner
	ledger   stockReleaser
	outbox   outboxPublisher
	notifier statusNotifier
	metrics  transitionRecorder
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Repo     *Repository
	Tx       db.TxRunner
	Ledger   stockReleaser
	Outbox   outboxPublisher
	Notifier statusNotifier
	Metrics  transitionRecorder
	Logger   *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Service{
		repo:     p.Repo,
		tx:       p.Tx,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// Cancel cancels every order of a fully pending group and returns the
// reserved stock.
func (s *Service) Cancel(ctx context.Context, actor types.Actor, groupID uuid.UUID) (*models.CheckoutGroup, error) {
	return s.transitionGroup(ctx, actor, groupID, enums.OrderStatusCancelled)
}

// MarkOnWay moves the group's pending orders to on-way.
func (s *Service) MarkOnWay(ctx context.Context, actor types.Actor, groupID uuid.UUID) (*models.CheckoutGroup, error) {
	return s.transitionGroup(ctx, actor, groupID, enums.OrderStatusOnWay)
}

// MarkReceived completes a group whose orders are all on-way.
func (s *Service) MarkReceived(ctx context.Context, actor types.Actor, groupID uuid.UUID) (*models.CheckoutGroup, error) {
	return s.transitionGroup(ctx, actor, groupID, enums.OrderStatusReceived)
}

// MarkOrderOnWay moves a single vendor order to on-way. Admin only.
func (s *Service) MarkOrderOnWay(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.CheckoutGroup, error) {
	if !actor.IsAdmin() {
		s.record(enums.OrderStatusOnWay, metrics.ResultFailure)
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can move a single order")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, loadError(err)
	}
	return s.apply(ctx, actor, order.GroupID, enums.OrderStatusOnWay, func(group *models.CheckoutGroup) ([]models.Order, error) {
		for _, o := range group.Orders {
			if o.ID == orderID {
				if err := checkSingleOnWay(group.Orders, o); err != nil {
					return nil, err
				}
				return []models.Order{o}, nil
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	})
}

func (s *Service) transitionGroup(ctx context.Context, actor types.Actor, groupID uuid.UUID, to enums.OrderStatus) (*models.CheckoutGroup, error) {
	return s.apply(ctx, actor, groupID, to, func(group *models.CheckoutGroup) ([]models.Order, error) {
		return planGroupTransition(group.Orders, to)
	})
}

// apply runs plan against the locked group and writes each move with a
// conditional update. Cancellation releases stock in the same transaction.
func (s *Service) apply(ctx context.Context, actor types.Actor, groupID uuid.UUID, to enums.OrderStatus, plan func(*models.CheckoutGroup) ([]models.Order, error)) (*models.CheckoutGroup, error) {
	ctx = s.logg.WithOrderGroupID(ctx, groupID.String())

	var (
		result *models.CheckoutGroup
		moved  []models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := repo.FindGroup(ctx, groupID, true)
		if err != nil {
			return loadError(err)
		}
		if !actor.CanActFor(group.OwnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the order owner or an admin can change its status")
		}

		moved, err = plan(group)
		if err != nil {
			return err
		}

		at := s.now().UTC()
		for _, order := range moved {
			ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, to, at)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order %s changed concurrently", order.Code)
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.ActorFrom(actor),
				OccurredAt:    at,
				Data: payloads.OrderStatusChangedEvent{
					OrderID:  order.ID,
					GroupID:  group.ID,
					OwnerID:  group.OwnerID,
					VendorID: order.VendorID,
					From:     order.Status,
					To:       to,
					At:       at,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status event")
			}
		}

		if to == enums.OrderStatusCancelled {
			if err := s.releaseStock(ctx, tx, actor, group); err != nil {
				return err
			}
		}

		result, err = repo.FindGroup(ctx, groupID, false)
		return err
	})
	if err != nil {
		s.record(to, outcome(err))
		if dump := pkgerrors.Dump(err); dump.Unexpected() {
			s.logg.Error(s.logg.WithFields(ctx, dump.Fields()), "order transition failed", err)
		}
		return nil, err
	}
	s.record(to, metrics.ResultSuccess)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"to":       string(to),
		"moved":    len(moved),
		"actor_id": actor.UserID.String(),
	}), "order transition applied")

	if s.notifier != nil {
		if err := s.notifier.NotifyStatusChange(ctx, result, moved, to); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "status notification failed")
		}
	}
	return result, nil
}

func (s *Service) releaseStock(ctx context.Context, tx *gorm.DB, actor types.Actor, group *models.CheckoutGroup) error {
	lines := make([]inventory.Line, 0)
	for _, order := range group.Orders {
		for _, item := range order.Items {
			lines = append(lines, inventory.Line{ItemID: item.ItemID, Quantity: item.Quantity})
		}
	}
	released, err := s.ledger.Release(ctx, tx, lines)
	if err != nil {
		return err
	}

	event := payloads.ReservationReleasedEvent{GroupID: group.ID, Lines: make([]payloads.ReleasedLine, 0, len(released))}
	for _, line := range released {
		event.Lines = append(event.Lines, payloads.ReleasedLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateCheckoutGroup,
		AggregateID:   group.ID,
		Actor:         outbox.ActorFrom(actor),
		Data:          event,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit release event")
	}
	return nil
}

// GetGroup returns a group to its owner, an admin, or one of its vendors.
func (s *Service) GetGroup(ctx context.Context, actor types.Actor, groupID uuid.UUID) (*models.CheckoutGroup, error) {
	group, err := s.repo.FindGroup(ctx, groupID, false)
	if err != nil {
		return nil, loadError(err)
	}
	if !actor.CanActFor(group.OwnerID) && !group.VendorIDs.Contains(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
	}
	return group, nil
}

// ListForOwner pages an owner's checkout groups, newest first.
func (s *Service) ListForOwner(ctx context.Context, actor types.Actor, ownerID uuid.UUID, params pagination.Params) (pagination.Page[models.CheckoutGroup], error) {
	if !actor.CanActFor(ownerID) {
		return pagination.Page[models.CheckoutGroup]{}, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to list these orders")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.CheckoutGroup]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.ListGroupsForOwner(ctx, ownerID, params)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

func (s *Service) record(to enums.OrderStatus, result string) {
	if s.metrics != nil {
		s.metrics.Inc(string(to), result)
	}
}

func outcome(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		return metrics.ResultConflict
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return metrics.ResultValidation
	default:
		return metrics.ResultFailure
	}
}

func loadError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
