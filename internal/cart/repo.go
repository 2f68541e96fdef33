package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// ErrCartNotFound is returned when the owner has no cart.
var ErrCartNotFound = errors.New("cart not found")

// Repository persists carts and their lines.
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

// FindByOwner loads the owner's cart with lines in position order. With lock
// set the cart row is locked for the rest of the transaction.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID, lock bool) (*models.Cart, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var c models.Cart
	err := q.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).Where("owner_id = ?", ownerID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the cart header and makes the stored lines match c.Items.
func (r *Repository) Save(ctx context.Context, c *models.Cart) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Omit(clause.Associations).Save(c).Error; err != nil {
		return err
	}

	keep := make([]uuid.UUID, 0, len(c.Items))
	for i := range c.Items {
		c.Items[i].CartID = c.ID
		if err := conn.Save(&c.Items[i]).Error; err != nil {
			return err
		}
		keep = append(keep, c.Items[i].ID)
	}

	stale := conn.Where("cart_id = ?", c.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	return stale.Delete(&models.CartItem{}).Error
}

// Delete removes the cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return conn.Delete(&models.Cart{}, "id = ?", cartID).Error
}
