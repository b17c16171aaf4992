package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateDonation    = "CREATE_DONATION"
	ActionApproveDonation   = "APPROVE_DONATION"
	ActionRejectDonation    = "REJECT_DONATION"
	ActionCreateRequest     = "CREATE_BLOOD_REQUEST"
	ActionFulfillRequest    = "FULFILL_BLOOD_REQUEST"
	ActionDenyRequest       = "DENY_BLOOD_REQUEST"
	ActionAdjustInventory   = "ADJUST_INVENTORY"
	ActionSeedInventoryRows = "SEED_INVENTORY"
)

// AuditLog tracks Who, What, and When for every workflow transition
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nil for system actions
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
