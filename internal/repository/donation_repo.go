package repository

import (
	"context"
	"errors"
	"time"

	"bloodbank/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DonationFilter struct {
	DonorID *uuid.UUID
	Status  string
	From    *time.Time // inclusive, on created_at
	To      *time.Time // exclusive
}

// Transition describes a move out of pending.
type Transition struct {
	ID    uuid.UUID
	To    string
	Actor uuid.UUID
	Notes string
	At    time.Time
}

func (f DonationFilter) scope(db *gorm.DB) *gorm.DB {
	if f.DonorID != nil {
		db = db.Where("donor_id = ?", *f.DonorID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at < ?", *f.To)
	}
	return db
}

type DonationRepository interface {
	Create(ctx context.Context, d *model.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error)
	HasPending(ctx context.Context, donorID uuid.UUID) (bool, error)
	// LatestApproved returns nil, nil when the donor has never been approved.
	LatestApproved(ctx context.Context, donorID uuid.UUID) (*model.Donation, error)
	// Transition moves a pending donation; false means it was no longer pending.
	Transition(ctx context.Context, t Transition) (bool, error)
	List(ctx context.Context, filter DonationFilter, offset, limit int) ([]model.Donation, int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	CountActioned(ctx context.Context, status string, from, to time.Time) (int64, error)
}

type donationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &donationRepository{db: db}
}

func (r *donationRepository) Create(ctx context.Context, d *model.Donation) error {
	return GetDB(ctx, r.db).Create(d).Error
}

func (r *donationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	var d model.Donation
	if err := GetDB(ctx, r.db).Preload("Donor").Preload("Reviewer").First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *donationRepository) HasPending(ctx context.Context, donorID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Donation{}).
		Where("donor_id = ? AND status = ?", donorID, model.DonationPending).
		Count(&count).Error
	return count > 0, err
}

func (r *donationRepository) LatestApproved(ctx context.Context, donorID uuid.UUID) (*model.Donation, error) {
	var d model.Donation
	err := GetDB(ctx, r.db).
		Where("donor_id = ? AND status = ? AND action_date IS NOT NULL", donorID, model.DonationApproved).
		Order("action_date DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *donationRepository) Transition(ctx context.Context, t Transition) (bool, error) {
	updates := map[string]interface{}{
		"status":      t.To,
		"reviewed_by": t.Actor,
		"action_date": t.At,
		"updated_at":  t.At,
	}
	if t.Notes != "" {
		updates["notes"] = t.Notes
	}
	res := GetDB(ctx, r.db).Model(&model.Donation{}).
		Where("id = ? AND status = ?", t.ID, model.DonationPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *donationRepository) List(ctx context.Context, filter DonationFilter, offset, limit int) ([]model.Donation, int64, error) {
	var rows []model.Donation
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Donation{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Scopes(filter.scope).Preload("Donor").Preload("Reviewer").
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *donationRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Donation{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *donationRepository) CountActioned(ctx context.Context, status string, from, to time.Time) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Donation{}).
		Where("status = ? AND action_date >= ? AND action_date < ?", status, from, to).
		Count(&count).Error
	return count, err
}
