package service

import (
	"time"

	"bloodbank/internal/repository"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/metrics"

	"gorm.io/gorm"
)

// Options configures the workflow services.
type Options struct {
	Thresholds       Thresholds
	DonationCooldown time.Duration
	Publisher        Publisher
	Metrics          *metrics.WorkflowMetrics
	Logger           *logger.Logger
}

// Services bundles every service the HTTP layer needs.
type Services struct {
	Donations DonationService
	Requests  BloodRequestService
	Inventory InventoryService
	Dashboard DashboardService
	Audit     AuditService
}

// New wires repositories, the shared stock ledger and the services over db.
func New(db *gorm.DB, opts Options) *Services {
	txManager := repository.NewTransactionManager(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	ledgerRepo := repository.NewInventoryTxRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	requestRepo := repository.NewBloodRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	stock := NewStockLedger(inventoryRepo, ledgerRepo, opts.Thresholds, opts.Metrics, opts.Publisher, opts.Logger)

	return &Services{
		Donations: NewDonationService(donationRepo, auditRepo, txManager, stock, opts.Metrics, opts.Logger, opts.DonationCooldown),
		Requests:  NewBloodRequestService(requestRepo, auditRepo, txManager, stock, opts.Metrics, opts.Logger),
		Inventory: NewInventoryService(inventoryRepo, ledgerRepo, auditRepo, txManager, stock, opts.Metrics, opts.Logger),
		Dashboard: NewDashboardService(inventoryRepo, ledgerRepo, donationRepo, requestRepo, txManager, stock),
		Audit:     NewAuditService(auditRepo),
	}
}
