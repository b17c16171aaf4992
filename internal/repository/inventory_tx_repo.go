package repository

import (
	"context"

	"bloodbank/internal/model"

	"gorm.io/gorm"
)

type LedgerFilter struct {
	BloodGroup string
	Reason     string
}

func (f LedgerFilter) scope(db *gorm.DB) *gorm.DB {
	if f.BloodGroup != "" {
		db = db.Where("blood_group = ?", f.BloodGroup)
	}
	if f.Reason != "" {
		db = db.Where("reason = ?", f.Reason)
	}
	return db
}

// GroupTotal is the ledger aggregate for one blood group.
type GroupTotal struct {
	BloodGroup string
	Total      int
	Entries    int64
}

type InventoryTxRepository interface {
	Create(ctx context.Context, tx *model.InventoryTransaction) error
	List(ctx context.Context, filter LedgerFilter, offset, limit int) ([]model.InventoryTransaction, int64, error)
	Recent(ctx context.Context, n int) ([]model.InventoryTransaction, error)
	SumByGroup(ctx context.Context) ([]GroupTotal, error)
}

type inventoryTxRepository struct {
	db *gorm.DB
}

func NewInventoryTxRepository(db *gorm.DB) InventoryTxRepository {
	return &inventoryTxRepository{db: db}
}

func (r *inventoryTxRepository) Create(ctx context.Context, tx *model.InventoryTransaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *inventoryTxRepository) List(ctx context.Context, filter LedgerFilter, offset, limit int) ([]model.InventoryTransaction, int64, error) {
	var rows []model.InventoryTransaction
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.InventoryTransaction{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Scopes(filter.scope).Order("created_at DESC").Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *inventoryTxRepository) Recent(ctx context.Context, n int) ([]model.InventoryTransaction, error) {
	var rows []model.InventoryTransaction
	if err := GetDB(ctx, r.db).Order("created_at DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *inventoryTxRepository) SumByGroup(ctx context.Context) ([]GroupTotal, error) {
	var totals []GroupTotal
	err := GetDB(ctx, r.db).Model(&model.InventoryTransaction{}).
		Select("blood_group, COALESCE(SUM(delta), 0) AS total, COUNT(*) AS entries").
		Group("blood_group").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
