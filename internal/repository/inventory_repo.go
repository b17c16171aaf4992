package repository

import (
	"context"
	"errors"
	"time"

	"bloodbank/internal/model"

	"gorm.io/gorm"
)

// ErrStockGuard is returned when a delta would take a group below zero.
var ErrStockGuard = errors.New("inventory quantity would become negative")

type InventoryRepository interface {
	List(ctx context.Context) ([]model.Inventory, error)
	FindByGroup(ctx context.Context, group string) (*model.Inventory, error)
	// FindForUpdate row-locks the group until the surrounding transaction ends.
	FindForUpdate(ctx context.Context, group string) (*model.Inventory, error)
	// ApplyDelta adds delta to the group and recomputes is_low against threshold.
	ApplyDelta(ctx context.Context, group string, delta, threshold int) (*model.Inventory, error)
	SetLowFlag(ctx context.Context, group string, threshold int) error
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) List(ctx context.Context) ([]model.Inventory, error) {
	var rows []model.Inventory
	if err := GetDB(ctx, r.db).Order("blood_group ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *inventoryRepository) FindByGroup(ctx context.Context, group string) (*model.Inventory, error) {
	var row model.Inventory
	if err := GetDB(ctx, r.db).First(&row, "blood_group = ?", group).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *inventoryRepository) FindForUpdate(ctx context.Context, group string) (*model.Inventory, error) {
	var row model.Inventory
	if err := forUpdate(GetDB(ctx, r.db)).First(&row, "blood_group = ?", group).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// The WHERE guard makes a racing decrement fail instead of going negative.
// SET expressions see the pre-update quantity.
func (r *inventoryRepository) ApplyDelta(ctx context.Context, group string, delta, threshold int) (*model.Inventory, error) {
	db := GetDB(ctx, r.db)
	res := db.Model(&model.Inventory{}).
		Where("blood_group = ? AND quantity + ? >= 0", group, delta).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"is_low":     gorm.Expr("quantity + ? < ?", delta, threshold),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByGroup(ctx, group); err != nil {
			return nil, err
		}
		return nil, ErrStockGuard
	}
	return r.FindByGroup(ctx, group)
}

func (r *inventoryRepository) SetLowFlag(ctx context.Context, group string, threshold int) error {
	return GetDB(ctx, r.db).Model(&model.Inventory{}).
		Where("blood_group = ?", group).
		UpdateColumn("is_low", gorm.Expr("quantity < ?", threshold)).Error
}
