package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// VendorOrder is the slice of a checkout a single vendor is told about.
type VendorOrder struct {
	VendorID  uuid.UUID
	OrderCode string
	Bill      string
}

// NewOrderNotice describes a committed checkout group.
type NewOrderNotice struct {
	GroupID uuid.UUID
	Code    string
	Orders  []VendorOrder
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// Service writes and reads in-app notifications.
type Service struct {
	repo    Repository
	timeout time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires notifications dependencies. timeout bounds each
// recipient's write during a fan-out; zero means no extra bound.
func NewService(repo Repository, timeout time.Duration, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, timeout: timeout, logg: logg, now: time.Now}, nil
}

// NotifyNewOrder tells every vendor of group about its order.
func (s *Service) NotifyNewOrder(ctx context.Context, group *models.CheckoutGroup) error {
	notice := NewOrderNotice{GroupID: group.ID, Code: group.Code}
	for _, order := range group.Orders {
		notice.Orders = append(notice.Orders, VendorOrder{
			VendorID:  order.VendorID,
			OrderCode: order.Code,
			Bill:      order.Bill.StringFixed(2),
		})
	}
	return s.NotifyVendors(ctx, notice)
}

// NotifyVendors writes one new_order notification per vendor concurrently.
// Vendors that already hold one for the group are skipped, so a replay from
// the event consumer does not duplicate a direct write.
func (s *Service) NotifyVendors(ctx context.Context, notice NewOrderNotice) error {
	notes := make([]models.Notification, 0, len(notice.Orders))
	for _, order := range notice.Orders {
		notes = append(notes, models.Notification{
			RecipientID: order.VendorID,
			Type:        enums.NotificationTypeNewOrder,
			Title:       "New order received",
			Message:     fmt.Sprintf("Order %s was placed for %s.", order.OrderCode, order.Bill),
			Link:        orderLink(notice.GroupID),
			GroupID:     &notice.GroupID,
		})
	}
	return s.fanOut(ctx, notes, true)
}

// NotifyStatusChange records a transition. Cancellations go to the vendors
// whose orders were cancelled; other moves go to the buyer.
func (s *Service) NotifyStatusChange(ctx context.Context, group *models.CheckoutGroup, moved []models.Order, to enums.OrderStatus) error {
	if len(moved) == 0 {
		return nil
	}
	if to == enums.OrderStatusCancelled {
		notes := make([]models.Notification, 0, len(moved))
		for _, order := range moved {
			notes = append(notes, models.Notification{
				RecipientID: order.VendorID,
				Type:        enums.NotificationTypeOrderCanceled,
				Title:       "Order cancelled",
				Message:     fmt.Sprintf("Order %s was cancelled by the buyer.", order.Code),
				Link:        orderLink(group.ID),
				GroupID:     &group.ID,
			})
		}
		return s.fanOut(ctx, notes, false)
	}

	return s.fanOut(ctx, []models.Notification{{
		RecipientID: group.OwnerID,
		Type:        enums.NotificationTypeOrderUpdate,
		Title:       "Order update",
		Message:     fmt.Sprintf("Order %s is now %s.", group.Code, to),
		Link:        orderLink(group.ID),
		GroupID:     &group.ID,
	}}, false)
}

func (s *Service) fanOut(ctx context.Context, notes []models.Notification, once bool) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i := range notes {
		note := notes[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.deliver(ctx, &note, once); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("notify %s: %w", note.RecipientID, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (s *Service) deliver(ctx context.Context, note *models.Notification, once bool) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if once && note.GroupID != nil {
		exists, err := s.repo.Exists(ctx, note.RecipientID, *note.GroupID, note.Type)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return s.repo.Create(ctx, note)
}

// List pages the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor types.Actor, params ListParams) (pagination.Page[models.Notification], error) {
	if actor.UserID == uuid.Nil {
		return pagination.Page[models.Notification]{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Notification]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	page, err := s.repo.List(ctx, listNotificationsParams{
		RecipientID: actor.UserID,
		Limit:       params.Limit,
		Cursor:      cursor,
		UnreadOnly:  params.UnreadOnly,
	})
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return page, nil
}

func (s *Service) MarkRead(ctx context.Context, actor types.Actor, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, actor.UserID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor types.Actor) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, actor.UserID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func orderLink(groupID uuid.UUID) *string {
	link := fmt.Sprintf("/orders/%s", groupID)
	return &link
}
