package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/angelmondragon/bazaar-backend/pkg/validators"
)

type couponStore interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateCouponInput describes a new coupon. A nil VendorID is store-wide and
// only admins may create those.
type CreateCouponInput struct {
	Code      string     `json:"code" validate:"required,alphanum,min=3,max=32"`
	Percent   int        `json:"discount" validate:"min=1,max=99"`
	ValidFrom time.Time  `json:"validFrom" validate:"required"`
	ExpireAt  time.Time  `json:"expireAt" validate:"required"`
	VendorID  *uuid.UUID `json:"vendorId,omitempty"`
}

type Service struct {
	repo couponStore
	logg *logger.Logger
}

func NewService(repo couponStore, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}, nil
}

// NormalizeCode is the canonical form codes are stored and compared in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) Create(ctx context.Context, actor types.Actor, input CreateCouponInput) (*models.Coupon, error) {
	if !actor.Role.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and admins can create coupons")
	}
	input.Code = NormalizeCode(input.Code)
	if err := validators.Struct(input); err != nil {
		return nil, err
	}
	if !input.ValidFrom.Before(input.ExpireAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validFrom must be before expireAt")
	}

	scope := input.VendorID
	if !actor.IsAdmin() {
		if scope != nil && *scope != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendors can only scope coupons to themselves")
		}
		self := actor.UserID
		scope = &self
	}

	coupon := &models.Coupon{
		Code:      input.Code,
		Percent:   input.Percent,
		ValidFrom: input.ValidFrom.UTC(),
		ExpireAt:  input.ExpireAt.UTC(),
		VendorID:  scope,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "coupon %s already exists", coupon.Code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	s.logg.Info(s.logg.WithField(ctx, "coupon_code", coupon.Code), "coupon created")
	return coupon, nil
}

// Lookup resolves a code for pricing. Validity windows are checked by the caller.
func (s *Service) Lookup(ctx context.Context, code string) (*models.Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if errors.Is(err, errNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "coupon %s not found", normalized)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *Service) Get(ctx context.Context, code string) (*models.Coupon, error) {
	return s.Lookup(ctx, code)
}

// Delete removes a coupon. Only its vendor or an admin may delete it. Carts
// that already applied it keep their folded discounts.
func (s *Service) Delete(ctx context.Context, actor types.Actor, id uuid.UUID) error {
	coupon, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, errNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	owner := coupon.CreatedBy
	if coupon.VendorID != nil {
		owner = *coupon.VendorID
	}
	if !actor.CanActFor(owner) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to delete this coupon")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	return nil
}
