package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const reserveSavepoint = "inventory_reserve"

var errVersionConflict = errors.New("item version changed")

// Line is a stock movement request for a single item.
type Line struct {
	ItemID   uuid.UUID
	Quantity int
}

type retryRecorder interface {
	IncReserveRetry()
}

// Ledger moves item stock inside the caller's transaction. Every decrement is
// a compare-and-swap on the item version so concurrent checkouts cannot
// oversell.
type Ledger struct {
	logg      *logger.Logger
	attempts  uint64
	baseDelay time.Duration
	retries   retryRecorder
}

func NewLedger(cfg config.CheckoutConfig, logg *logger.Logger, retries retryRecorder) *Ledger {
	if logg == nil {
		logg = logger.Nop()
	}
	attempts := cfg.ReservationAttempts
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.ReservationBaseDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}
	return &Ledger{logg: logg, attempts: attempts, baseDelay: delay, retries: retries}
}

// Reserve decrements stock for every line or for none of them. Lines for the
// same item are merged. A shortfall is INSUFFICIENT_STOCK naming the item; an unknown
// item is NOT_FOUND.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "inventory reserve requires a transaction")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	if err := tx.SavePoint(reserveSavepoint).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "begin reservation")
	}
	for _, line := range merged {
		if err := l.reserveLine(ctx, tx, line); err != nil {
			if rbErr := tx.RollbackTo(reserveSavepoint).Error; rbErr != nil {
				return multierr.Append(err, pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback reservation"))
			}
			return err
		}
	}
	return nil
}

func (l *Ledger) reserveLine(ctx context.Context, tx *gorm.DB, line Line) error {
	backoff := retry.WithMaxRetries(l.attempts, retry.NewExponential(l.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var item models.Item
		err := tx.WithContext(ctx).
			Select("id", "name", "quantity", "version").
			First(&item, "id = ?", line.ItemID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "item %s no longer exists", line.ItemID).
				WithDetails(map[string]any{"item_id": line.ItemID.String()})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item stock")
		}
		if item.Quantity < line.Quantity {
			return shortfall(item, line.Quantity)
		}

		res := tx.WithContext(ctx).
			Model(&models.Item{}).
			Where("id = ? AND version = ? AND quantity >= ?", item.ID, item.Version, line.Quantity).
			Updates(map[string]any{
				"quantity": gorm.Expr("quantity - ?", line.Quantity),
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement item stock")
		}
		if res.RowsAffected == 0 {
			if l.retries != nil {
				l.retries.IncReserveRetry()
			}
			return retry.RetryableError(errVersionConflict)
		}
		return nil
	})
	if errors.Is(err, errVersionConflict) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("item %s is being updated concurrently, retry checkout", line.ItemID)).
			WithDetails(map[string]any{"item_id": line.ItemID.String()})
	}
	return err
}

// Release increments stock for each line and returns the lines actually
// applied. Items deleted since the reservation are skipped.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, lines []Line) ([]Line, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory release requires a transaction")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	released := make([]Line, 0, len(merged))
	for _, line := range merged {
		res := tx.WithContext(ctx).
			Model(&models.Item{}).
			Where("id = ?", line.ItemID).
			Updates(map[string]any{
				"quantity": gorm.Expr("quantity + ?", line.Quantity),
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment item stock")
		}
		if res.RowsAffected == 0 {
			l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
				"item_id":  line.ItemID.String(),
				"quantity": line.Quantity,
			}), "release skipped for missing item")
			continue
		}
		released = append(released, line)
	}
	return released, nil
}

func shortfall(item models.Item, requested int) error {
	return pkgerrors.Newf(pkgerrors.CodeOutOfStock, "insufficient stock for %q", item.Name).
		WithDetails(map[string]any{
			"item_id":   item.ID.String(),
			"requested": requested,
			"available": item.Quantity,
		})
}

// mergeLines sums quantities per item, keeping first-seen order.
func mergeLines(lines []Line) ([]Line, error) {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for item %s must be positive", line.ItemID)
		}
		if i, ok := index[line.ItemID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}
