package repository

import (
	"context"
	"time"

	"bloodbank/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BloodRequestFilter struct {
	Status  string
	Urgency *bool
	From    *time.Time
	To      *time.Time
}

func (f BloodRequestFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Urgency != nil {
		db = db.Where("urgency = ?", *f.Urgency)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at < ?", *f.To)
	}
	return db
}

type BloodRequestRepository interface {
	Create(ctx context.Context, req *model.BloodRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
	// Transition moves a pending request; false means it was no longer pending.
	Transition(ctx context.Context, t Transition) (bool, error)
	List(ctx context.Context, filter BloodRequestFilter, offset, limit int) ([]model.BloodRequest, int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	CountActioned(ctx context.Context, status string, from, to time.Time) (int64, error)
}

type bloodRequestRepository struct {
	db *gorm.DB
}

func NewBloodRequestRepository(db *gorm.DB) BloodRequestRepository {
	return &bloodRequestRepository{db: db}
}

func (r *bloodRequestRepository) Create(ctx context.Context, req *model.BloodRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *bloodRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	var req model.BloodRequest
	if err := GetDB(ctx, r.db).Preload("Requester").Preload("Actioner").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *bloodRequestRepository) Transition(ctx context.Context, t Transition) (bool, error) {
	updates := map[string]interface{}{
		"status":      t.To,
		"actioned_by": t.Actor,
		"action_date": t.At,
		"updated_at":  t.At,
	}
	if t.Notes != "" {
		updates["notes"] = t.Notes
	}
	res := GetDB(ctx, r.db).Model(&model.BloodRequest{}).
		Where("id = ? AND status = ?", t.ID, model.RequestPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List orders urgent requests first, newest first within each group.
func (r *bloodRequestRepository) List(ctx context.Context, filter BloodRequestFilter, offset, limit int) ([]model.BloodRequest, int64, error) {
	var rows []model.BloodRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.BloodRequest{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Scopes(filter.scope).Preload("Requester").Preload("Actioner").
		Order("urgency DESC").Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *bloodRequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.BloodRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *bloodRequestRepository) CountActioned(ctx context.Context, status string, from, to time.Time) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.BloodRequest{}).
		Where("status = ? AND action_date >= ? AND action_date < ?", status, from, to).
		Count(&count).Error
	return count, err
}
