package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository exposes user and vendor-request persistence.
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs returns the users that exist among ids, keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("role", role).Error
}

func (r *Repository) CreateVendorRequest(ctx context.Context, req *models.VendorRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) FindVendorRequest(ctx context.Context, id uuid.UUID) (*models.VendorRequest, error) {
	var req models.VendorRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) HasPendingVendorRequest(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorRequest{}).
		Where("user_id = ? AND status = ?", userID, enums.VendorRequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

// DecideVendorRequest moves a pending request to status. It reports false when
// the request was no longer pending.
func (r *Repository) DecideVendorRequest(ctx context.Context, id, decidedBy uuid.UUID, status enums.VendorRequestStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorRequest{}).
		Where("id = ? AND status = ?", id, enums.VendorRequestStatusPending).
		Updates(map[string]any{
			"status":     status,
			"decided_by": decidedBy,
			"decided_at": at,
		})
	return res.RowsAffected == 1, res.Error
}
