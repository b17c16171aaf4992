package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Inventory is the materialized stock level of one blood group.
// It always equals the sum of InventoryTransaction.Delta for that group.
type Inventory struct {
	BloodGroup string    `gorm:"type:varchar(5);primaryKey" json:"blood_group"`
	Quantity   int       `gorm:"type:int;not null;default:0;check:chk_inventories_quantity,quantity >= 0" json:"quantity"`
	IsLow      bool      `gorm:"not null;default:false;index" json:"is_low"`
	UpdatedAt  time.Time `json:"last_updated"`
}

// MaxUnitsPerEntry caps the units a single donation, request or adjustment may move.
const MaxUnitsPerEntry = 1000

// MaxStock is the largest quantity an inventory row can hold (postgres integer column).
const MaxStock = math.MaxInt32

// Ledger reasons
const (
	TxReasonDonationApproved = "donation_approved"
	TxReasonRequestFulfilled = "request_fulfilled"
	TxReasonAdjustment       = "adjustment"
)

// InventoryTransaction is an append-only ledger entry. Rows are never updated or deleted.
type InventoryTransaction struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BloodGroup     string     `gorm:"type:varchar(5);not null;index" json:"blood_group"`
	Delta          int        `gorm:"type:int;not null" json:"delta"`
	StockAfter     int        `gorm:"type:int;not null" json:"stock_after"`
	Reason         string     `gorm:"type:varchar(20);not null;index" json:"reason"`
	DonationID     *uuid.UUID `gorm:"type:uuid;index" json:"donation_id,omitempty"`
	BloodRequestID *uuid.UUID `gorm:"type:uuid;index" json:"blood_request_id,omitempty"`
	ActorID        *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time  `gorm:"index" json:"timestamp"`
}

func (t *InventoryTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
