package repository

import (
	"context"
	"testing"

	"bloodbank/internal/model"
	"bloodbank/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryRowsSeededForEveryGroup(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewInventoryRepository(db)

	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, len(model.BloodGroups))
	for _, row := range rows {
		assert.Zero(t, row.Quantity)
	}
}

func TestApplyDeltaUpdatesQuantityAndLowFlag(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewInventoryRepository(db)
	ctx := context.Background()

	row, err := repo.ApplyDelta(ctx, model.BloodGroupOPos, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, row.Quantity)
	assert.False(t, row.IsLow)

	row, err = repo.ApplyDelta(ctx, model.BloodGroupOPos, -3, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, row.Quantity)
	assert.True(t, row.IsLow)
}

func TestApplyDeltaGuardsAgainstNegativeStock(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewInventoryRepository(db)
	ctx := context.Background()
	testutil.SetStock(t, db, model.BloodGroupANeg, 2)

	_, err := repo.ApplyDelta(ctx, model.BloodGroupANeg, -3, 5)
	require.ErrorIs(t, err, ErrStockGuard)

	row, err := repo.FindByGroup(ctx, model.BloodGroupANeg)
	require.NoError(t, err)
	assert.Equal(t, 2, row.Quantity)
}

func TestApplyDeltaUnknownGroup(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewInventoryRepository(db)

	_, err := repo.ApplyDelta(context.Background(), "C+", 1, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStockGuard)
}

func TestSumByGroup(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewInventoryTxRepository(db)
	ctx := context.Background()

	for _, entry := range []model.InventoryTransaction{
		{BloodGroup: model.BloodGroupOPos, Delta: 10, StockAfter: 10, Reason: model.TxReasonAdjustment},
		{BloodGroup: model.BloodGroupOPos, Delta: -4, StockAfter: 6, Reason: model.TxReasonRequestFulfilled},
		{BloodGroup: model.BloodGroupBNeg, Delta: 1, StockAfter: 1, Reason: model.TxReasonDonationApproved},
	} {
		entry := entry
		require.NoError(t, ledger.Create(ctx, &entry))
	}

	totals, err := ledger.SumByGroup(ctx)
	require.NoError(t, err)

	byGroup := map[string]GroupTotal{}
	for _, total := range totals {
		byGroup[total.BloodGroup] = total
	}
	assert.Equal(t, 6, byGroup[model.BloodGroupOPos].Total)
	assert.EqualValues(t, 2, byGroup[model.BloodGroupOPos].Entries)
	assert.Equal(t, 1, byGroup[model.BloodGroupBNeg].Total)

	rows, total, err := ledger.List(ctx, LedgerFilter{BloodGroup: model.BloodGroupOPos}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)
}
