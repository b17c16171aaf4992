package service

import (
	"context"
	"math"
	"testing"

	"bloodbank/internal/model"
	"bloodbank/internal/testutil"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventorySnapshotListsAllGroupsInOrder(t *testing.T) {
	f := newFixture(t, cooldown)
	f.seed(t, model.BloodGroupONeg, 6)

	levels, err := f.svc.Inventory.GetInventorySnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, len(model.BloodGroups))
	for i, g := range model.BloodGroups {
		assert.Equal(t, g, levels[i].BloodGroup)
	}

	last := levels[len(levels)-1]
	assert.Equal(t, 6, last.Quantity)
	assert.False(t, last.IsLow)
	assert.True(t, levels[0].IsLow)
	assert.Equal(t, 5, levels[0].Threshold)
}

func TestThresholdOverrides(t *testing.T) {
	th := Thresholds{Default: 5, Overrides: map[string]int{model.BloodGroupOPos: 10}}
	assert.Equal(t, 10, th.For(model.BloodGroupOPos))
	assert.Equal(t, 5, th.For(model.BloodGroupANeg))
}

func TestAdjustInventory(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()

	level, err := f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "a+", Delta: 8, Notes: "stock count"})
	require.NoError(t, err)
	assert.Equal(t, 8, level.Quantity)
	assert.False(t, level.IsLow)

	level, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: -5, Notes: "expired units"})
	require.NoError(t, err)
	assert.Equal(t, 3, level.Quantity)
	assert.True(t, level.IsLow)

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: -4, Notes: "too many"})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: 0, Notes: "noop"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: math.MinInt64, Notes: "wipe"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: model.MaxUnitsPerEntry + 1, Notes: "bulk"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "A+", Delta: 1, Notes: " "})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Inventory.AdjustInventory(ctx, f.donor, AdjustInventoryRequest{BloodGroup: "A+", Delta: 1, Notes: "x"})
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))

	assert.Equal(t, 3, f.quantity(t, model.BloodGroupAPos))
	assert.EqualValues(t, 2, f.ledgerCount(t, model.BloodGroupAPos))

	page, err := f.svc.Inventory.ListTransactions(ctx, f.admin, TransactionFilter{BloodGroup: "A+"}, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		assert.Equal(t, model.TxReasonAdjustment, item.Reason)
	}
}

func TestReconcileLedgerReportsDrift(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()
	f.seed(t, model.BloodGroupBPos, 4)
	f.assertBalanced(t)

	// A write that bypasses the ledger shows up as drift.
	testutil.SetStock(t, f.db, model.BloodGroupBPos, 9)

	report, err := f.svc.Inventory.ReconcileLedger(ctx, f.admin)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	for _, g := range report.Groups {
		if g.BloodGroup == model.BloodGroupBPos {
			assert.Equal(t, 9, g.Quantity)
			assert.Equal(t, 4, g.LedgerTotal)
			assert.Equal(t, 5, g.Drift)
			assert.EqualValues(t, 1, g.LedgerEntries)
		} else {
			assert.Zero(t, g.Drift)
		}
	}

	_, err = f.svc.Inventory.ReconcileLedger(ctx, f.donor)
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))
}

func TestSyncLowStockFlags(t *testing.T) {
	f := newFixture(t, cooldown)
	testutil.SetStock(t, f.db, model.BloodGroupABPos, 7)

	require.NoError(t, f.svc.Inventory.SyncLowStockFlags(context.Background()))

	var pos model.Inventory
	require.NoError(t, f.db.First(&pos, "blood_group = ?", model.BloodGroupABPos).Error)
	assert.False(t, pos.IsLow)
	var neg model.Inventory
	require.NoError(t, f.db.First(&neg, "blood_group = ?", model.BloodGroupABNeg).Error)
	assert.True(t, neg.IsLow)
}

func TestAdjustInventoryStopsAtMaxStock(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()
	testutil.SetStock(t, f.db, model.BloodGroupBNeg, model.MaxStock-5)

	_, err := f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "B-", Delta: 10, Notes: "transfer in"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Equal(t, model.MaxStock-5, f.quantity(t, model.BloodGroupBNeg))

	level, err := f.svc.Inventory.AdjustInventory(ctx, f.admin, AdjustInventoryRequest{BloodGroup: "B-", Delta: 5, Notes: "transfer in"})
	require.NoError(t, err)
	assert.Equal(t, model.MaxStock, level.Quantity)
}
