package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/angelmondragon/bazaar-backend/pkg/validators"
)

const maxNoteLen = 500

// Service drives the user-to-vendor application flow.
type Service struct {
	repo *Repository
	tx   db.TxRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, tx db.TxRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// RequestVendorAccess files a pending request for the acting user. Users that
// can already sell, or that have a pending request, get a CONFLICT.
func (s *Service) RequestVendorAccess(ctx context.Context, actor types.Actor, note string) (*models.VendorRequest, error) {
	user, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.Role.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user can already sell")
	}

	pending, err := s.repo.HasPendingVendorRequest(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check vendor requests")
	}
	if pending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a vendor request is already pending")
	}

	req := &models.VendorRequest{UserID: user.ID, Status: enums.VendorRequestStatusPending}
	if trimmed := validators.SanitizeString(note, maxNoteLen); trimmed != "" {
		req.Note = &trimmed
	}
	if err := s.repo.CreateVendorRequest(ctx, req); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a vendor request is already pending")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vendor request")
	}
	return req, nil
}

// DecideVendorRequest approves or rejects a pending request. Approval upgrades
// the requesting user to vendor in the same transaction.
func (s *Service) DecideVendorRequest(ctx context.Context, actor types.Actor, requestID uuid.UUID, approve bool) (*models.VendorRequest, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can decide vendor requests")
	}
	status := enums.VendorRequestStatusRejected
	if approve {
		status = enums.VendorRequestStatusApproved
	}

	var decided *models.VendorRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindVendorRequest(ctx, requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor request not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor request")
		}

		ok, err := repo.DecideVendorRequest(ctx, req.ID, actor.UserID, status, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor request")
		}
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "vendor request is already %s", req.Status)
		}
		if approve {
			if err := repo.UpdateRole(ctx, req.UserID, enums.UserRoleVendor); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upgrade user role")
			}
		}
		decided, err = repo.FindVendorRequest(ctx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"request_id": decided.ID.String(),
		"user_id":    decided.UserID.String(),
		"status":     string(status),
	}), "vendor request decided")
	return decided, nil
}

// Sellers returns the users among ids that may still sell. Missing or
// downgraded users are left out.
func (s *Service) Sellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
	}
	for id, user := range found {
		if !user.Role.CanSell() {
			delete(found, id)
		}
	}
	return found, nil
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
