// Package dbtest opens throwaway sqlite databases migrated from the gorm
// models, plus a few fixture builders shared by repository and service tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// Open returns a fresh in-memory database. Connections are capped at one so
// every statement sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:bazaar_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

// Client wraps Open in a db.Client so services get a real transaction runner.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.FromGorm(Open(t))
}

func CreateUser(t testing.TB, conn *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Email: fmt.Sprintf("bz_%s@example.com", uuid.NewString()),
		Name:  "Test " + string(role),
		Role:  role,
	}
	require.NoError(t, conn.Create(user).Error)
	return user
}

func CreateItem(t testing.TB, conn *gorm.DB, vendorID uuid.UUID, name, price string, qty int) *models.Item {
	t.Helper()
	item := &models.Item{
		VendorID: vendorID,
		Name:     name,
		Category: "general",
		Brand:    "acme",
		Images:   []string{name + ".png"},
		Price:    money.MustParse(price),
		Quantity: qty,
	}
	require.NoError(t, conn.Create(item).Error)
	return item
}

// Stock reads an item's current quantity.
func Stock(t testing.TB, conn *gorm.DB, itemID uuid.UUID) int {
	t.Helper()
	var item models.Item
	require.NoError(t, conn.First(&item, "id = ?", itemID).Error)
	return item.Quantity
}
