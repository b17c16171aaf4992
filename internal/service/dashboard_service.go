package service

import (
	"context"
	"fmt"
	"time"

	"bloodbank/internal/model"
	"bloodbank/internal/repository"
	"bloodbank/pkg/apperror"
)

const recentTransactionLimit = 10

type PendingCounts struct {
	Donations int64 `json:"donations"`
	Requests  int64 `json:"requests"`
}

type TodayCounts struct {
	Donations int64 `json:"donations"` // approved today
	Requests  int64 `json:"requests"`  // fulfilled today
}

type DashboardResponse struct {
	Inventory          []InventoryLevelResponse `json:"inventory"`
	Pending            PendingCounts            `json:"pending"`
	Today              TodayCounts              `json:"today"`
	RecentTransactions []TransactionResponse    `json:"recent_transactions"`
	LowStockAlerts     []InventoryLevelResponse `json:"low_stock_alerts"`
}

type DashboardService interface {
	GetDashboardSnapshot(ctx context.Context, actor Actor) (DashboardResponse, error)
}

type dashboardService struct {
	inventoryRepo repository.InventoryRepository
	ledgerRepo    repository.InventoryTxRepository
	donationRepo  repository.DonationRepository
	requestRepo   repository.BloodRequestRepository
	txManager     repository.TransactionManager
	stock         *StockLedger
	now           func() time.Time
}

func NewDashboardService(
	inventoryRepo repository.InventoryRepository,
	ledgerRepo repository.InventoryTxRepository,
	donationRepo repository.DonationRepository,
	requestRepo repository.BloodRequestRepository,
	txManager repository.TransactionManager,
	stock *StockLedger,
) DashboardService {
	return &dashboardService{
		inventoryRepo: inventoryRepo,
		ledgerRepo:    ledgerRepo,
		donationRepo:  donationRepo,
		requestRepo:   requestRepo,
		txManager:     txManager,
		stock:         stock,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetDashboardSnapshot reads every section from one snapshot and counts
// "today" by action date within the current UTC day.
func (s *dashboardService) GetDashboardSnapshot(ctx context.Context, actor Actor) (DashboardResponse, error) {
	if err := requireAdmin(actor, "Only admins can access dashboard data"); err != nil {
		return DashboardResponse{}, err
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var resp DashboardResponse
	err := s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		rows, err := s.inventoryRepo.List(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load inventory: %w", err)
		}
		resp.Inventory = inventoryLevels(rows, s.stock)
		resp.LowStockAlerts = make([]InventoryLevelResponse, 0)
		for _, level := range resp.Inventory {
			if level.IsLow {
				resp.LowStockAlerts = append(resp.LowStockAlerts, level)
			}
		}

		if resp.Pending.Donations, err = s.donationRepo.CountByStatus(txCtx, model.DonationPending); err != nil {
			return fmt.Errorf("failed to count pending donations: %w", err)
		}
		if resp.Pending.Requests, err = s.requestRepo.CountByStatus(txCtx, model.RequestPending); err != nil {
			return fmt.Errorf("failed to count pending requests: %w", err)
		}
		if resp.Today.Donations, err = s.donationRepo.CountActioned(txCtx, model.DonationApproved, dayStart, dayEnd); err != nil {
			return fmt.Errorf("failed to count approved donations: %w", err)
		}
		if resp.Today.Requests, err = s.requestRepo.CountActioned(txCtx, model.RequestFulfilled, dayStart, dayEnd); err != nil {
			return fmt.Errorf("failed to count fulfilled requests: %w", err)
		}

		recent, err := s.ledgerRepo.Recent(txCtx, recentTransactionLimit)
		if err != nil {
			return fmt.Errorf("failed to load recent transactions: %w", err)
		}
		resp.RecentTransactions = toTransactionResponses(recent)
		return nil
	})
	if err != nil {
		return DashboardResponse{}, apperror.Internal(err, "failed to build dashboard")
	}
	return resp, nil
}
