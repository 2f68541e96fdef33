package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/items"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// RemoveAll passed as a quantity to ReduceItem drops the whole line.
const RemoveAll = -1

// Service mutates a user's cart. Every mutation recomputes the totals from
// the remaining lines before saving.
type Service struct {
	carts   *Repository
	items   *items.Repository
	coupons *coupons.Repository
	tx      db.TxRunner
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(carts *Repository, itemRepo *items.Repository, couponRepo *coupons.Repository, tx db.TxRunner, logg *logger.Logger) (*Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if itemRepo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if couponRepo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{carts: carts, items: itemRepo, coupons: couponRepo, tx: tx, logg: logg, now: time.Now}, nil
}

func (s *Service) GetCart(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error) {
	c, err := s.carts.FindByOwner(ctx, ownerID, false)
	if err != nil {
		return nil, cartLoadError(err)
	}
	return c, nil
}

// AddItem adds qty of an item. An existing line grows; a new line snapshots
// the item and picks up the cart's coupons that are active now.
func (s *Service) AddItem(ctx context.Context, ownerID, itemID uuid.UUID, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.mutate(ctx, ownerID, true, func(tx *gorm.DB, c *models.Cart) error {
		if i := lineIndex(c, itemID); i >= 0 {
			c.Items[i].Quantity += qty
			return nil
		}

		item, err := s.items.WithTx(tx).Get(ctx, itemID)
		if err != nil {
			return err
		}
		line := models.CartItem{
			ItemID:   item.ID,
			VendorID: item.VendorID,
			Position: nextPosition(c),
			Name:     item.Name,
			Category: item.Category,
			Brand:    item.Brand,
			Images:   append([]string(nil), item.Images...),
			Price:    item.Price,
			Quantity: qty,
		}

		active, err := s.activeCoupons(ctx, tx, c.AppliedCoupons)
		if err != nil {
			return err
		}
		for _, coupon := range active {
			if coupon.Covers(line.VendorID) {
				line.Discounts = append(line.Discounts, types.AppliedDiscount{Code: coupon.Code, Percent: coupon.Percent})
			}
		}
		Reprice(&line)
		c.Items = append(c.Items, line)
		return nil
	})
}

// ReduceItem lowers a line's quantity; reaching zero or passing RemoveAll
// deletes the line.
func (s *Service) ReduceItem(ctx context.Context, ownerID, itemID uuid.UUID, qty int) (*models.Cart, error) {
	if qty <= 0 && qty != RemoveAll {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.mutate(ctx, ownerID, false, func(_ *gorm.DB, c *models.Cart) error {
		i := lineIndex(c, itemID)
		if i < 0 {
			return lineNotFound(itemID)
		}
		if qty == RemoveAll || c.Items[i].Quantity-qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		c.Items[i].Quantity -= qty
		return nil
	})
}

// SetItemQuantity overwrites a line's quantity. Zero removes the line.
func (s *Service) SetItemQuantity(ctx context.Context, ownerID, itemID uuid.UUID, qty int) (*models.Cart, error) {
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	return s.mutate(ctx, ownerID, false, func(_ *gorm.DB, c *models.Cart) error {
		i := lineIndex(c, itemID)
		if i < 0 {
			return lineNotFound(itemID)
		}
		if qty == 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		c.Items[i].Quantity = qty
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID uuid.UUID) (*models.Cart, error) {
	return s.ReduceItem(ctx, ownerID, itemID, RemoveAll)
}

// ApplyCoupon stacks a coupon onto every covered line. A coupon covering no
// current line is still recorded so lines added later pick it up.
func (s *Service) ApplyCoupon(ctx context.Context, ownerID uuid.UUID, code string) (*models.Cart, error) {
	code = coupons.NormalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	c, err := s.mutate(ctx, ownerID, false, func(tx *gorm.DB, c *models.Cart) error {
		if len(c.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}
		if c.AppliedCoupons.Contains(code) {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "coupon %s is already applied", code)
		}

		found, err := s.coupons.WithTx(tx).FindByCodes(ctx, []string{code})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
		}
		coupon, ok := found[code]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "coupon %s not found", code)
		}
		if !coupon.ActiveAt(s.now()) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "coupon %s is not active", code)
		}
		applyDiscount(c, coupon)
		c.AppliedCoupons = append(c.AppliedCoupons, code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"owner_id": ownerID.String(), "coupon_code": code}), "coupon applied")
	return c, nil
}

// CancelCoupon removes a previously applied coupon and refolds the remaining
// discounts on each affected line.
func (s *Service) CancelCoupon(ctx context.Context, ownerID uuid.UUID, code string) (*models.Cart, error) {
	code = coupons.NormalizeCode(code)
	c, err := s.mutate(ctx, ownerID, false, func(_ *gorm.DB, c *models.Cart) error {
		if !c.AppliedCoupons.Contains(code) {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "coupon %s is not applied", code)
		}
		removeDiscount(c, code)
		c.AppliedCoupons = c.AppliedCoupons.Without(code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"owner_id": ownerID.String(), "coupon_code": code}), "coupon cancelled")
	return c, nil
}

// mutate loads the owner's cart under lock, applies fn, recomputes totals and
// saves. With create set a missing cart is started empty.
func (s *Service) mutate(ctx context.Context, ownerID uuid.UUID, create bool, fn func(tx *gorm.DB, c *models.Cart) error) (*models.Cart, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.carts.WithTx(tx)
		c, err := repo.FindByOwner(ctx, ownerID, true)
		switch {
		case errors.Is(err, ErrCartNotFound) && create:
			c = &models.Cart{OwnerID: ownerID}
		case err != nil:
			return cartLoadError(err)
		}

		if err := fn(tx, c); err != nil {
			return err
		}
		Recompute(c)
		if err := repo.Save(ctx, c); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart was modified concurrently, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// activeCoupons resolves applied codes that still exist and are in their
// validity window, preserving application order.
func (s *Service) activeCoupons(ctx context.Context, tx *gorm.DB, codes []string) ([]models.Coupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	found, err := s.coupons.WithTx(tx).FindByCodes(ctx, codes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load applied coupons")
	}
	now := s.now()
	out := make([]models.Coupon, 0, len(codes))
	for _, code := range codes {
		if coupon, ok := found[code]; ok && coupon.ActiveAt(now) {
			out = append(out, coupon)
		}
	}
	return out, nil
}

func cartLoadError(err error) error {
	if errors.Is(err, ErrCartNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
}

func lineIndex(c *models.Cart, itemID uuid.UUID) int {
	for i, line := range c.Items {
		if line.ItemID == itemID {
			return i
		}
	}
	return -1
}

func nextPosition(c *models.Cart) int {
	next := 0
	for _, line := range c.Items {
		if line.Position >= next {
			next = line.Position + 1
		}
	}
	return next
}

func lineNotFound(itemID uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "item %s is not in the cart", itemID).
		WithDetails(map[string]any{"item_id": itemID.String()})
}
