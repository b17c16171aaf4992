package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles carried in the token role claim.
const (
	RoleAdmin = "admin"
	RoleDonor = "donor"
)

// IsValidRole reports whether role is a known role.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleDonor
}

// User is an account referenced by donations, requests and ledger entries.
type User struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Username   string         `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email      string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password   string         `gorm:"type:varchar(255);not null" json:"-"`
	Role       string         `gorm:"type:varchar(10);not null;default:'donor'" json:"role"` // admin, donor
	BloodGroup string         `gorm:"type:varchar(5)" json:"blood_group,omitempty"`
	City       string         `gorm:"type:varchar(100)" json:"city,omitempty"`
	Contact    string         `gorm:"type:varchar(100)" json:"contact,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
