package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

func newTestService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	client := dbtest.Client(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo, client, nil)
	require.NoError(t, err)
	return svc, repo
}

func TestVendorRequestApprovalUpgradesRole(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, repo.db, enums.UserRoleUser)
	admin := dbtest.CreateUser(t, repo.db, enums.UserRoleAdmin)

	req, err := svc.RequestVendorAccess(ctx, types.Actor{UserID: user.ID, Role: user.Role}, "  I sell lamps  ")
	require.NoError(t, err)
	require.NotNil(t, req.Note)
	assert.Equal(t, "I sell lamps", *req.Note)

	_, err = svc.RequestVendorAccess(ctx, types.Actor{UserID: user.ID, Role: user.Role}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "second pending request is rejected")

	_, err = svc.DecideVendorRequest(ctx, types.Actor{UserID: user.ID, Role: enums.UserRoleUser}, req.ID, true)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	decided, err := svc.DecideVendorRequest(ctx, types.Actor{UserID: admin.ID, Role: admin.Role}, req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, enums.VendorRequestStatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, admin.ID, *decided.DecidedBy)

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleVendor, reloaded.Role)

	_, err = svc.DecideVendorRequest(ctx, types.Actor{UserID: admin.ID, Role: admin.Role}, req.ID, false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRejectedRequestKeepsRole(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, repo.db, enums.UserRoleUser)
	admin := types.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	req, err := svc.RequestVendorAccess(ctx, types.Actor{UserID: user.ID, Role: user.Role}, "")
	require.NoError(t, err)
	assert.Nil(t, req.Note)

	decided, err := svc.DecideVendorRequest(ctx, admin, req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, enums.VendorRequestStatusRejected, decided.Status)

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleUser, reloaded.Role)

	_, err = svc.DecideVendorRequest(ctx, admin, uuid.New(), true)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSellersFiltersBuyersAndMissing(t *testing.T) {
	svc, repo := newTestService(t)
	vendor := dbtest.CreateUser(t, repo.db, enums.UserRoleVendor)
	admin := dbtest.CreateUser(t, repo.db, enums.UserRoleAdmin)
	buyer := dbtest.CreateUser(t, repo.db, enums.UserRoleUser)

	sellers, err := svc.Sellers(context.Background(), []uuid.UUID{vendor.ID, admin.ID, buyer.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, sellers, 2)
	assert.Contains(t, sellers, vendor.ID)
	assert.Contains(t, sellers, admin.ID)
}
