package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// ErrNotFound is returned when a group or order does not exist.
var ErrNotFound = errors.New("order not found")

// Repository persists checkout groups, their per-vendor orders and line items.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateGroup inserts the group, then each order and its lines.
func (r *Repository) CreateGroup(ctx context.Context, group *models.CheckoutGroup) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Omit(clause.Associations).Create(group).Error; err != nil {
		return err
	}
	for i := range group.Orders {
		order := &group.Orders[i]
		order.GroupID = group.ID
		if err := conn.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}
		for j := range order.Items {
			order.Items[j].OrderID = order.ID
		}
		if len(order.Items) > 0 {
			if err := conn.Create(&order.Items).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// FindGroup loads a group with orders in vendor order and their lines. With
// lock set the group's orders are locked for the rest of the transaction.
func (r *Repository) FindGroup(ctx context.Context, groupID uuid.UUID, lock bool) (*models.CheckoutGroup, error) {
	var group models.CheckoutGroup
	err := r.db.WithContext(ctx).
		Preload("Orders", func(tx *gorm.DB) *gorm.DB {
			if lock {
				tx = db.ForUpdate(tx)
			}
			return tx.Order("vendor_index ASC")
		}).
		Preload("Orders.Items", linesInCartOrder).
		First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *Repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves one order from -> to only if it is still in from. It
// reports false when another writer got there first.
func (r *Repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.OrderStatusOnWay:
		updates["on_way_at"] = at
	case enums.OrderStatusReceived:
		updates["received_at"] = at
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListGroupsForOwner pages the owner's checkout groups newest first.
func (r *Repository) ListGroupsForOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (pagination.Page[models.CheckoutGroup], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.CheckoutGroup]{}, err
	}

	q := r.db.WithContext(ctx).
		Preload("Orders", func(tx *gorm.DB) *gorm.DB { return tx.Order("vendor_index ASC") }).
		Preload("Orders.Items", linesInCartOrder).
		Where("owner_id = ?", ownerID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.CheckoutGroup
	if err := q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.CheckoutGroup]{}, err
	}
	return pagination.Build(rows, params.Limit, func(g models.CheckoutGroup) pagination.Cursor {
		return pagination.Cursor{CreatedAt: g.CreatedAt, ID: g.ID}
	}), nil
}

func linesInCartOrder(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC").Order("id ASC")
}
