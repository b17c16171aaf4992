package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bloodbank/internal/model"
	"bloodbank/internal/repository"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }
func (a Actor) IsDonor() bool { return a.Role == model.RoleDonor }

func requireAdmin(a Actor, msg string) error {
	if !a.IsAdmin() {
		return apperror.Forbidden(msg)
	}
	return nil
}

// Thresholds decides when a blood group counts as low stock.
type Thresholds struct {
	Default   int
	Overrides map[string]int
}

// For returns the threshold for group; quantity below it is low.
func (t Thresholds) For(group string) int {
	if v, ok := t.Overrides[group]; ok {
		return v
	}
	return t.Default
}

// Publisher receives committed inventory events. *websocket.Hub satisfies it.
type Publisher interface {
	Publish(v any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(any) {}

const EventInventoryUpdated = "inventory.updated"

// InventoryEvent is pushed to admin dashboards after a stock change commits.
type InventoryEvent struct {
	Type       string    `json:"type"`
	BloodGroup string    `json:"blood_group"`
	Quantity   int       `json:"quantity"`
	IsLow      bool      `json:"is_low"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// StockChange is one ledger movement.
type StockChange struct {
	BloodGroup     string
	Delta          int
	Reason         string
	DonationID     *uuid.UUID
	BloodRequestID *uuid.UUID
	Actor          uuid.UUID
	Notes          string
}

// StockLedger is the only writer of inventory rows. Every change it applies
// lands as one inventory update plus one ledger entry in the caller's transaction.
type StockLedger struct {
	inventoryRepo repository.InventoryRepository
	ledgerRepo    repository.InventoryTxRepository
	thresholds    Thresholds
	metrics       *metrics.WorkflowMetrics
	publisher     Publisher
	log           *logger.Logger
}

func NewStockLedger(
	inventoryRepo repository.InventoryRepository,
	ledgerRepo repository.InventoryTxRepository,
	thresholds Thresholds,
	m *metrics.WorkflowMetrics,
	publisher Publisher,
	log *logger.Logger,
) *StockLedger {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StockLedger{
		inventoryRepo: inventoryRepo,
		ledgerRepo:    ledgerRepo,
		thresholds:    thresholds,
		metrics:       m,
		publisher:     publisher,
		log:           log,
	}
}

// Apply must run inside a transaction. It locks the inventory row, refuses to
// go below zero, then writes the new quantity and the ledger entry.
func (l *StockLedger) Apply(txCtx context.Context, change StockChange) (*InventoryEvent, error) {
	row, err := l.inventoryRepo.FindForUpdate(txCtx, change.BloodGroup)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Validation(fmt.Sprintf("no inventory for blood group %s", change.BloodGroup))
		}
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	if change.Delta < 0 && row.Quantity < -change.Delta {
		return nil, insufficientStock(row.BloodGroup, row.Quantity, -change.Delta)
	}
	if change.Delta > 0 && row.Quantity > model.MaxStock-change.Delta {
		return nil, apperror.Validation(fmt.Sprintf("stock for blood group %s would exceed %d units", row.BloodGroup, model.MaxStock))
	}

	updated, err := l.inventoryRepo.ApplyDelta(txCtx, change.BloodGroup, change.Delta, l.thresholds.For(change.BloodGroup))
	if err != nil {
		if errors.Is(err, repository.ErrStockGuard) {
			return nil, insufficientStock(row.BloodGroup, row.Quantity, -change.Delta)
		}
		return nil, fmt.Errorf("failed to update inventory: %w", err)
	}

	entry := model.InventoryTransaction{
		BloodGroup:     change.BloodGroup,
		Delta:          change.Delta,
		StockAfter:     updated.Quantity,
		Reason:         change.Reason,
		DonationID:     change.DonationID,
		BloodRequestID: change.BloodRequestID,
		ActorID:        &change.Actor,
		Notes:          change.Notes,
	}
	if err := l.ledgerRepo.Create(txCtx, &entry); err != nil {
		return nil, fmt.Errorf("failed to append inventory transaction: %w", err)
	}

	return &InventoryEvent{
		Type:       EventInventoryUpdated,
		BloodGroup: updated.BloodGroup,
		Quantity:   updated.Quantity,
		IsLow:      updated.IsLow,
		Delta:      change.Delta,
		Reason:     change.Reason,
		Timestamp:  updated.UpdatedAt,
	}, nil
}

// Committed records metrics and notifies listeners. Call only after commit.
func (l *StockLedger) Committed(ctx context.Context, ev *InventoryEvent) {
	if ev == nil {
		return
	}
	l.metrics.SetStock(ev.BloodGroup, ev.Quantity)
	l.metrics.AddLedgerUnits(ev.BloodGroup, ev.Reason, ev.Delta)
	if ev.IsLow {
		l.log.Warn(l.log.WithFields(ctx, map[string]any{
			"blood_group": ev.BloodGroup,
			"quantity":    ev.Quantity,
		}), "blood group below low stock threshold")
	}
	l.publisher.Publish(ev)
}

// Threshold exposes the configured low-stock threshold for group.
func (l *StockLedger) Threshold(group string) int {
	return l.thresholds.For(group)
}

func insufficientStock(group string, available, requested int) error {
	return apperror.InsufficientStock(fmt.Sprintf("Insufficient inventory. Available: %d bags", available)).
		WithDetails(map[string]any{
			"blood_group": group,
			"available":   available,
			"requested":   requested,
		})
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, actor Actor, action, entityID, entityName string, details any) error {
	payload, _ := json.Marshal(details)
	uid := actor.ID
	entry := model.AuditLog{
		UserID:     &uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// outcome labels a finished operation for metrics.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if typed := apperror.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(apperror.CodeInternal)
}

// wrapDBError leaves typed errors alone and hides everything else behind INTERNAL.
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if apperror.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Wrap(apperror.CodeNotFound, err, msg)
	}
	return apperror.Internal(err, msg)
}

func validateBloodGroup(group string) error {
	if !model.IsValidBloodGroup(group) {
		return apperror.Validation(fmt.Sprintf("invalid blood group %q", group)).
			WithDetails(map[string]any{"blood_group": model.BloodGroups})
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
