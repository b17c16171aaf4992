package database_test

import (
	"context"
	"testing"

	"bloodbank/internal/database"
	"bloodbank/internal/model"
	"bloodbank/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsRepeatable(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	testutil.SetStock(t, db, model.BloodGroupBNeg, 9)
	require.NoError(t, database.Migrate(ctx, db))

	var count int64
	require.NoError(t, db.Model(&model.Inventory{}).Count(&count).Error)
	assert.EqualValues(t, len(model.BloodGroups), count)

	var row model.Inventory
	require.NoError(t, db.First(&row, "blood_group = ?", model.BloodGroupBNeg).Error)
	assert.Equal(t, 9, row.Quantity)

	var seeded int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("action = ?", model.ActionSeedInventoryRows).Count(&seeded).Error)
	assert.EqualValues(t, 1, seeded)
}
