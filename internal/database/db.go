package database

import (
	"context"
	"fmt"
	"time"

	"bloodbank/internal/config"
	"bloodbank/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Models is the set of tables owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Inventory{},
		&model.Donation{},
		&model.BloodRequest{},
		&model.InventoryTransaction{},
		&model.AuditLog{},
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// GormConfig is shared by the postgres connection and the sqlite test databases.
// TranslateError maps unique violations onto gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Migrate creates or updates all tables and makes sure every blood group has an inventory row.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return EnsureInventoryRows(ctx, db)
}

// EnsureInventoryRows inserts a zero-quantity row for every blood group that has none.
// Existing rows are left untouched. Newly created rows are recorded in the audit log.
func EnsureInventoryRows(ctx context.Context, db *gorm.DB) error {
	rows := make([]model.Inventory, 0, len(model.BloodGroups))
	for _, g := range model.BloodGroups {
		rows = append(rows, model.Inventory{BloodGroup: g, Quantity: 0, IsLow: true})
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("seed inventory rows: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	entry := model.AuditLog{
		Action:     model.ActionSeedInventoryRows,
		EntityID:   "inventory",
		EntityName: "inventory",
		Details:    fmt.Sprintf("created %d inventory rows", result.RowsAffected),
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit inventory seeding: %w", err)
	}
	return nil
}
