package orders

import (
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// planGroupTransition decides which orders of a group move to target. The
// whole group agrees on cancel and receive; on-way only moves the orders
// still pending.
func planGroupTransition(orders []models.Order, target enums.OrderStatus) ([]models.Order, error) {
	if len(orders) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group has no orders")
	}
	counts := countStatuses(orders)

	switch target {
	case enums.OrderStatusCancelled:
		if counts[enums.OrderStatusPending] != len(orders) {
			return nil, transitionConflict(orders, target, "every order in the group must be pending to cancel")
		}
		return orders, nil

	case enums.OrderStatusOnWay:
		if counts[enums.OrderStatusCancelled] > 0 || counts[enums.OrderStatusReceived] > 0 {
			return nil, transitionConflict(orders, target, "group has cancelled or received orders")
		}
		movable := ordersIn(orders, enums.OrderStatusPending)
		if len(movable) == 0 {
			return nil, transitionConflict(orders, target, "group is already on-way")
		}
		return movable, nil

	case enums.OrderStatusReceived:
		if counts[enums.OrderStatusOnWay] != len(orders) {
			return nil, transitionConflict(orders, target, "every order in the group must be on-way to receive")
		}
		return orders, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported target status %q", target)
}

// checkSingleOnWay validates moving one order of a group to on-way.
func checkSingleOnWay(group []models.Order, order models.Order) error {
	counts := countStatuses(group)
	if counts[enums.OrderStatusCancelled] > 0 || counts[enums.OrderStatusReceived] > 0 {
		return transitionConflict(group, enums.OrderStatusOnWay, "group has cancelled or received orders")
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order %s is %s, not pending", order.Code, order.Status).
			WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.Status})
	}
	return nil
}

func countStatuses(orders []models.Order) map[enums.OrderStatus]int {
	counts := make(map[enums.OrderStatus]int, 4)
	for _, o := range orders {
		counts[o.Status]++
	}
	return counts
}

func ordersIn(orders []models.Order, status enums.OrderStatus) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func transitionConflict(orders []models.Order, target enums.OrderStatus, reason string) error {
	statuses := make(map[string]enums.OrderStatus, len(orders))
	for _, o := range orders {
		statuses[o.Code] = o.Status
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move group to %s: %s", target, reason).
		WithDetails(map[string]any{"target": target, "statuses": statuses})
}
