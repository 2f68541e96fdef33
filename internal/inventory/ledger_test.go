package inventory

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type countingRecorder struct{ n atomic.Int64 }

func (c *countingRecorder) IncReserveRetry() { c.n.Add(1) }

func newTestLedger() *Ledger {
	return NewLedger(config.CheckoutConfig{ReservationAttempts: 3, ReservationBaseDelay: 1}, nil, nil)
}

func TestReserveDecrementsAllLines(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	vendor := dbtest.CreateUser(t, conn, enums.UserRoleVendor)
	a := dbtest.CreateItem(t, conn, vendor.ID, "A", "10.00", 5)
	b := dbtest.CreateItem(t, conn, vendor.ID, "B", "20.00", 2)

	ledger := newTestLedger()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, []Line{
			{ItemID: a.ID, Quantity: 2},
			{ItemID: b.ID, Quantity: 2},
			{ItemID: a.ID, Quantity: 1},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, dbtest.Stock(t, conn, a.ID))
	assert.Equal(t, 0, dbtest.Stock(t, conn, b.ID))

	var reloaded models.Item
	require.NoError(t, conn.First(&reloaded, "id = ?", a.ID).Error)
	assert.Equal(t, int64(1), reloaded.Version, "merged lines write once")
}

func TestReserveShortfallLeavesEveryLineUntouched(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	vendor := dbtest.CreateUser(t, conn, enums.UserRoleVendor)
	first := dbtest.CreateItem(t, conn, vendor.ID, "First", "10.00", 4)
	scarce := dbtest.CreateItem(t, conn, vendor.ID, "Scarce", "10.00", 5)

	ledger := newTestLedger()
	var reserveErr error
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		reserveErr = ledger.Reserve(context.Background(), tx, []Line{
			{ItemID: first.ID, Quantity: 3},
			{ItemID: scarce.ID, Quantity: 6},
		})
		// savepoint rollback undoes the first decrement even if the caller commits
		return nil
	})
	require.NoError(t, err)
	require.Error(t, reserveErr)

	typed := pkgerrors.As(reserveErr)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.KindConflict, typed.Kind())
	details := typed.Details().(map[string]any)
	assert.Equal(t, scarce.ID.String(), details["item_id"])
	assert.Equal(t, 6, details["requested"])
	assert.Equal(t, 5, details["available"])

	assert.Equal(t, 4, dbtest.Stock(t, conn, first.ID))
	assert.Equal(t, 5, dbtest.Stock(t, conn, scarce.ID))
}

func TestReserveMissingItemIsNotFound(t *testing.T) {
	client := dbtest.Client(t)
	ledger := newTestLedger()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, []Line{{ItemID: uuid.New(), Quantity: 1}})
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReserveRejectsInvalidLines(t *testing.T) {
	client := dbtest.Client(t)
	ledger := newTestLedger()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, []Line{{ItemID: uuid.New(), Quantity: 0}})
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Error(t, ledger.Reserve(context.Background(), nil, []Line{{ItemID: uuid.New(), Quantity: 1}}))
}

func TestReserveRetriesOnVersionConflict(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	vendor := dbtest.CreateUser(t, conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, conn, vendor.ID, "Hot", "10.00", 10)

	// Bump the version after the first read so the first compare-and-swap misses.
	bumped := false
	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("test:bump_version", func(tx *gorm.DB) {
		if bumped {
			return
		}
		bumped = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE items SET version = version + 1 WHERE id = ?", item.ID)
	}))

	recorder := &countingRecorder{}
	ledger := NewLedger(config.CheckoutConfig{ReservationAttempts: 3, ReservationBaseDelay: 1}, nil, recorder)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, []Line{{ItemID: item.ID, Quantity: 4}})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), recorder.n.Load())
	assert.Equal(t, 6, dbtest.Stock(t, conn, item.ID))
}

func TestReleaseSkipsDeletedItems(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	vendor := dbtest.CreateUser(t, conn, enums.UserRoleVendor)
	item := dbtest.CreateItem(t, conn, vendor.ID, "Back", "10.00", 1)
	gone := uuid.New()

	ledger := newTestLedger()
	var released []Line
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		released, err = ledger.Release(context.Background(), tx, []Line{
			{ItemID: item.ID, Quantity: 2},
			{ItemID: gone, Quantity: 1},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []Line{{ItemID: item.ID, Quantity: 2}}, released)
	assert.Equal(t, 3, dbtest.Stock(t, conn, item.ID))
}
