package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/angelmondragon/bazaar-backend/pkg/validators"
)

type itemStore interface {
	Create(ctx context.Context, item *models.Item) error
	Get(ctx context.Context, id uuid.UUID) (*models.Item, error)
}

// CreateItemInput describes a new catalog item.
type CreateItemInput struct {
	Name     string          `json:"name" validate:"required,max=200"`
	SKU      *string         `json:"sku,omitempty"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	Images   []string        `json:"images"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=0"`
}

type Service struct {
	repo itemStore
}

func NewService(repo itemStore) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	return &Service{repo: repo}, nil
}

// Create lists a new item owned by the acting vendor.
func (s *Service) Create(ctx context.Context, actor types.Actor, input CreateItemInput) (*models.Item, error) {
	if !actor.Role.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can list items")
	}
	input.Name = validators.SanitizeString(input.Name, 0)
	if err := validators.Struct(input); err != nil {
		return nil, err
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}

	item := &models.Item{
		VendorID: actor.UserID,
		Name:     input.Name,
		SKU:      input.SKU,
		Category: strings.TrimSpace(input.Category),
		Brand:    strings.TrimSpace(input.Brand),
		Images:   input.Images,
		Price:    money.Round(input.Price),
		Quantity: input.Quantity,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return s.repo.Get(ctx, id)
}
