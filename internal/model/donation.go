package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Donation statuses
const (
	DonationPending  = "pending"
	DonationApproved = "approved"
	DonationRejected = "rejected"
)

// Donation is a donor's request to give blood. It leaves pending exactly once.
type Donation struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DonorID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_donations_one_pending,where:status = 'pending'" json:"donor_id"`
	Donor   *User     `gorm:"foreignKey:DonorID" json:"donor,omitempty"`
	// BloodGroup is the group recorded for this donation; inventory for it moves on approval.
	BloodGroup string     `gorm:"type:varchar(5);not null;index" json:"blood_group"`
	Quantity   int        `gorm:"type:int;not null" json:"quantity"`
	Status     string     `gorm:"type:varchar(10);not null;default:'pending';index" json:"status"`
	Notes      string     `gorm:"type:text" json:"notes"`
	ReviewedBy *uuid.UUID `gorm:"type:uuid" json:"reviewed_by"`
	Reviewer   *User      `gorm:"foreignKey:ReviewedBy" json:"reviewer,omitempty"`
	ActionDate *time.Time `gorm:"index" json:"action_date"`
	CreatedAt  time.Time  `gorm:"index" json:"request_date"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
