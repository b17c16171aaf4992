package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bloodbank/internal/model"
	"bloodbank/internal/repository"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/metrics"
	"bloodbank/pkg/pagination"
)

// --- DTOs ---

type AdjustInventoryRequest struct {
	BloodGroup string `json:"blood_group" binding:"required,bloodgroup"`
	Delta      int    `json:"delta" binding:"required,gte=-1000,lte=1000"`
	Notes      string `json:"notes" binding:"required,max=1000"`
}

type InventoryLevelResponse struct {
	BloodGroup  string `json:"blood_group"`
	Quantity    int    `json:"quantity"`
	IsLow       bool   `json:"is_low"`
	Threshold   int    `json:"threshold"`
	LastUpdated string `json:"last_updated"`
}

type TransactionFilter struct {
	BloodGroup string
	Reason     string
}

type TransactionResponse struct {
	ID             string  `json:"id"`
	BloodGroup     string  `json:"blood_group"`
	Delta          int     `json:"delta"`
	StockAfter     int     `json:"stock_after"`
	Reason         string  `json:"reason"`
	DonationID     *string `json:"donation_id,omitempty"`
	BloodRequestID *string `json:"blood_request_id,omitempty"`
	ActorID        *string `json:"actor_id,omitempty"`
	Notes          string  `json:"notes"`
	Timestamp      string  `json:"timestamp"`
}

type GroupReconciliation struct {
	BloodGroup    string `json:"blood_group"`
	Quantity      int    `json:"quantity"`
	LedgerTotal   int    `json:"ledger_total"`
	LedgerEntries int64  `json:"ledger_entries"`
	Drift         int    `json:"drift"`
}

type ReconciliationReport struct {
	Consistent bool                  `json:"consistent"`
	Groups     []GroupReconciliation `json:"groups"`
	CheckedAt  string                `json:"checked_at"`
}

// --- Interface ---

type InventoryService interface {
	GetInventorySnapshot(ctx context.Context) ([]InventoryLevelResponse, error)
	AdjustInventory(ctx context.Context, actor Actor, req AdjustInventoryRequest) (InventoryLevelResponse, error)
	ReconcileLedger(ctx context.Context, actor Actor) (ReconciliationReport, error)
	ListTransactions(ctx context.Context, actor Actor, filter TransactionFilter, p pagination.Params) (pagination.Page[TransactionResponse], error)
	// SyncLowStockFlags recomputes is_low for every group after thresholds change.
	SyncLowStockFlags(ctx context.Context) error
}

type inventoryService struct {
	inventoryRepo repository.InventoryRepository
	ledgerRepo    repository.InventoryTxRepository
	auditRepo     repository.AuditRepository
	txManager     repository.TransactionManager
	stock         *StockLedger
	metrics       *metrics.WorkflowMetrics
	log           *logger.Logger
}

func NewInventoryService(
	inventoryRepo repository.InventoryRepository,
	ledgerRepo repository.InventoryTxRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	stock *StockLedger,
	m *metrics.WorkflowMetrics,
	log *logger.Logger,
) InventoryService {
	if log == nil {
		log = logger.Nop()
	}
	return &inventoryService{
		inventoryRepo: inventoryRepo,
		ledgerRepo:    ledgerRepo,
		auditRepo:     auditRepo,
		txManager:     txManager,
		stock:         stock,
		metrics:       m,
		log:           log,
	}
}

// --- Implementation ---

func (s *inventoryService) GetInventorySnapshot(ctx context.Context) ([]InventoryLevelResponse, error) {
	rows, err := s.inventoryRepo.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err, "failed to load inventory")
	}
	return s.toLevels(rows), nil
}

func (s *inventoryService) AdjustInventory(ctx context.Context, actor Actor, req AdjustInventoryRequest) (InventoryLevelResponse, error) {
	resp, err := s.adjustInventory(ctx, actor, req)
	s.metrics.ObserveOutcome("adjust_inventory", outcome(err))
	return resp, err
}

func (s *inventoryService) adjustInventory(ctx context.Context, actor Actor, req AdjustInventoryRequest) (InventoryLevelResponse, error) {
	if err := requireAdmin(actor, "Only admins can adjust inventory"); err != nil {
		return InventoryLevelResponse{}, err
	}
	group := model.NormalizeBloodGroup(req.BloodGroup)
	if err := validateBloodGroup(group); err != nil {
		return InventoryLevelResponse{}, err
	}
	if req.Delta == 0 {
		return InventoryLevelResponse{}, apperror.Validation("delta must not be zero")
	}
	if req.Delta > model.MaxUnitsPerEntry || req.Delta < -model.MaxUnitsPerEntry {
		return InventoryLevelResponse{}, apperror.Validation(fmt.Sprintf("delta must be between -%d and %d units", model.MaxUnitsPerEntry, model.MaxUnitsPerEntry))
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		return InventoryLevelResponse{}, apperror.Validation("a reason is required for manual adjustments")
	}

	var event *InventoryEvent
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		event, err = s.stock.Apply(txCtx, StockChange{
			BloodGroup: group,
			Delta:      req.Delta,
			Reason:     model.TxReasonAdjustment,
			Actor:      actor.ID,
			Notes:      notes,
		})
		if err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionAdjustInventory, group, group, map[string]any{
			"delta":       req.Delta,
			"stock_after": event.Quantity,
			"notes":       notes,
		})
	})
	if err != nil {
		return InventoryLevelResponse{}, wrapDBError(err, "failed to adjust inventory")
	}

	s.stock.Committed(ctx, event)
	return InventoryLevelResponse{
		BloodGroup:  event.BloodGroup,
		Quantity:    event.Quantity,
		IsLow:       event.IsLow,
		Threshold:   s.stock.Threshold(event.BloodGroup),
		LastUpdated: event.Timestamp.UTC().Format(time.RFC3339),
	}, nil
}

func (s *inventoryService) ReconcileLedger(ctx context.Context, actor Actor) (ReconciliationReport, error) {
	if err := requireAdmin(actor, "Only admins can reconcile the ledger"); err != nil {
		return ReconciliationReport{}, err
	}

	var report ReconciliationReport
	// Quantities and ledger sums must come from the same snapshot.
	err := s.txManager.RunInSnapshot(ctx, func(txCtx context.Context) error {
		rows, err := s.inventoryRepo.List(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load inventory: %w", err)
		}
		totals, err := s.ledgerRepo.SumByGroup(txCtx)
		if err != nil {
			return fmt.Errorf("failed to sum ledger: %w", err)
		}
		report = buildReconciliation(rows, totals)
		return nil
	})
	if err != nil {
		return ReconciliationReport{}, wrapDBError(err, "failed to reconcile ledger")
	}

	if !report.Consistent {
		s.log.Warn(s.log.WithField(ctx, "groups", report.Groups), "inventory drifted from ledger")
	}
	return report, nil
}

func buildReconciliation(rows []model.Inventory, totals []repository.GroupTotal) ReconciliationReport {
	byGroup := make(map[string]repository.GroupTotal, len(totals))
	for _, t := range totals {
		byGroup[t.BloodGroup] = t
	}

	report := ReconciliationReport{Consistent: true, CheckedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, row := range sortInventory(rows) {
		t := byGroup[row.BloodGroup]
		g := GroupReconciliation{
			BloodGroup:    row.BloodGroup,
			Quantity:      row.Quantity,
			LedgerTotal:   t.Total,
			LedgerEntries: t.Entries,
			Drift:         row.Quantity - t.Total,
		}
		if g.Drift != 0 {
			report.Consistent = false
		}
		report.Groups = append(report.Groups, g)
	}
	return report
}

func (s *inventoryService) ListTransactions(ctx context.Context, actor Actor, filter TransactionFilter, p pagination.Params) (pagination.Page[TransactionResponse], error) {
	if err := requireAdmin(actor, "Only admins can view inventory transactions"); err != nil {
		return pagination.Page[TransactionResponse]{}, err
	}
	repoFilter := repository.LedgerFilter{
		BloodGroup: model.NormalizeBloodGroup(filter.BloodGroup),
		Reason:     strings.TrimSpace(filter.Reason),
	}
	if repoFilter.BloodGroup != "" {
		if err := validateBloodGroup(repoFilter.BloodGroup); err != nil {
			return pagination.Page[TransactionResponse]{}, err
		}
	}

	rows, total, err := s.ledgerRepo.List(ctx, repoFilter, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[TransactionResponse]{}, apperror.Internal(err, "failed to list inventory transactions")
	}
	return pagination.NewPage(toTransactionResponses(rows), total, p), nil
}

func (s *inventoryService) SyncLowStockFlags(ctx context.Context) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for _, group := range model.BloodGroups {
			if err := s.inventoryRepo.SetLowFlag(txCtx, group, s.stock.Threshold(group)); err != nil {
				return fmt.Errorf("failed to refresh low stock flag for %s: %w", group, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	rows, err := s.inventoryRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}
	for _, row := range rows {
		s.metrics.SetStock(row.BloodGroup, row.Quantity)
	}
	return nil
}

// toLevels derives is_low from the live threshold rather than the stored flag.
func (s *inventoryService) toLevels(rows []model.Inventory) []InventoryLevelResponse {
	return inventoryLevels(rows, s.stock)
}

func inventoryLevels(rows []model.Inventory, stock *StockLedger) []InventoryLevelResponse {
	res := make([]InventoryLevelResponse, 0, len(rows))
	for _, row := range sortInventory(rows) {
		threshold := stock.Threshold(row.BloodGroup)
		res = append(res, InventoryLevelResponse{
			BloodGroup:  row.BloodGroup,
			Quantity:    row.Quantity,
			IsLow:       row.Quantity < threshold,
			Threshold:   threshold,
			LastUpdated: row.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return res
}

// sortInventory orders rows the way BloodGroups lists them.
func sortInventory(rows []model.Inventory) []model.Inventory {
	rank := make(map[string]int, len(model.BloodGroups))
	for i, g := range model.BloodGroups {
		rank[g] = i
	}
	sorted := append([]model.Inventory(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank[sorted[i].BloodGroup] < rank[sorted[j].BloodGroup]
	})
	return sorted
}

func toTransactionResponses(rows []model.InventoryTransaction) []TransactionResponse {
	res := make([]TransactionResponse, 0, len(rows))
	for _, t := range rows {
		res = append(res, TransactionResponse{
			ID:             t.ID.String(),
			BloodGroup:     t.BloodGroup,
			Delta:          t.Delta,
			StockAfter:     t.StockAfter,
			Reason:         t.Reason,
			DonationID:     uuidString(t.DonationID),
			BloodRequestID: uuidString(t.BloodRequestID),
			ActorID:        uuidString(t.ActorID),
			Notes:          t.Notes,
			Timestamp:      t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return res
}
