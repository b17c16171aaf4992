// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"bloodbank/internal/database"
	"bloodbank/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory sqlite database private to the test.
// A single connection serializes whole transactions, so concurrency tests on
// it check the outcome only. SELECT ... FOR UPDATE is dropped by the sqlite
// dialect; the row-lock path runs only against postgres. The guarded stock
// update is covered directly in the repository tests.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:bloodbank_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// PostgresDSNEnv names the variable holding a disposable postgres database
// for the tests that need real row locks.
const PostgresDSNEnv = "BLOODBANK_TEST_POSTGRES_DSN"

// NewPostgresDB opens and migrates the database named by PostgresDSNEnv and
// wipes workflow data. The test is skipped when the variable is unset.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	require.NoError(t, db.Exec("TRUNCATE inventory_transactions, audit_logs, donations, blood_requests, users CASCADE").Error)
	require.NoError(t, db.Exec("UPDATE inventories SET quantity = 0, is_low = true").Error)
	return db
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, role string) *model.User {
	t.Helper()

	name := role + "_" + uuid.NewString()[:8]
	u := &model.User{
		Username:   name,
		Email:      name + "@example.test",
		Password:   "x",
		Role:       role,
		BloodGroup: model.BloodGroupOPos,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// SetStock writes a quantity directly, bypassing the ledger.
func SetStock(t *testing.T, db *gorm.DB, group string, qty int) {
	t.Helper()
	require.NoError(t, db.Model(&model.Inventory{}).Where("blood_group = ?", group).Update("quantity", qty).Error)
}
