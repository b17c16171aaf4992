package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BloodRequest statuses
const (
	RequestPending   = "pending"
	RequestFulfilled = "fulfilled"
	RequestDenied    = "denied"
)

// BloodRequest is a hospital request raised by an admin. Stock is checked only on fulfilment.
type BloodRequest struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestedBy uuid.UUID  `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester   *User      `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	BloodGroup  string     `gorm:"type:varchar(5);not null;index" json:"blood_group"`
	Quantity    int        `gorm:"type:int;not null" json:"quantity"`
	PatientName string     `gorm:"type:varchar(100);not null" json:"patient_name"`
	Hospital    string     `gorm:"type:varchar(200);not null" json:"hospital"`
	Urgency     bool       `gorm:"not null;default:false;index" json:"urgency"`
	Status      string     `gorm:"type:varchar(10);not null;default:'pending';index" json:"status"`
	Notes       string     `gorm:"type:text" json:"notes"`
	ActionedBy  *uuid.UUID `gorm:"type:uuid" json:"actioned_by"`
	Actioner    *User      `gorm:"foreignKey:ActionedBy" json:"actioner,omitempty"`
	ActionDate  *time.Time `gorm:"index" json:"action_date"`
	CreatedAt   time.Time  `gorm:"index" json:"request_date"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *BloodRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
