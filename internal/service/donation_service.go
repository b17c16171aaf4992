package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bloodbank/internal/model"
	"bloodbank/internal/repository"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/metrics"
	"bloodbank/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateDonationRequest struct {
	BloodGroup string `json:"blood_group" binding:"required,bloodgroup"`
	Quantity   int    `json:"quantity" binding:"required,gt=0,lte=1000"`
	Notes      string `json:"notes" binding:"max=1000"`
}

type ReviewDonationRequest struct {
	Status string `json:"status" binding:"required"` // approved or rejected
	Notes  string `json:"notes" binding:"max=1000"`
}

type DonationFilter struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time // inclusive day
}

type DonationResponse struct {
	ID           string  `json:"id"`
	DonorID      string  `json:"donor"`
	DonorName    string  `json:"donor_name"`
	BloodGroup   string  `json:"blood_group"`
	Quantity     int     `json:"quantity"`
	Status       string  `json:"status"`
	Notes        string  `json:"notes"`
	ReviewedBy   *string `json:"reviewed_by"`
	ReviewerName string  `json:"reviewer_name,omitempty"`
	RequestDate  string  `json:"request_date"`
	ActionDate   *string `json:"action_date"`
}

// --- Interface ---

type DonationService interface {
	SubmitDonation(ctx context.Context, actor Actor, req CreateDonationRequest) (DonationResponse, error)
	ReviewDonation(ctx context.Context, actor Actor, id string, req ReviewDonationRequest) (DonationResponse, error)
	ListDonations(ctx context.Context, actor Actor, filter DonationFilter, p pagination.Params) (pagination.Page[DonationResponse], error)
	GetDonation(ctx context.Context, actor Actor, id string) (DonationResponse, error)
}

type donationService struct {
	donationRepo repository.DonationRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	stock        *StockLedger
	metrics      *metrics.WorkflowMetrics
	log          *logger.Logger
	cooldown     time.Duration
	now          func() time.Time
}

func NewDonationService(
	donationRepo repository.DonationRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	stock *StockLedger,
	m *metrics.WorkflowMetrics,
	log *logger.Logger,
	cooldown time.Duration,
) DonationService {
	if log == nil {
		log = logger.Nop()
	}
	return &donationService{
		donationRepo: donationRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		stock:        stock,
		metrics:      m,
		log:          log,
		cooldown:     cooldown,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

const (
	msgPendingDonation = "You already have a pending donation request"
	msgDonationNotOpen = "Only pending donations can be approved or rejected"
	msgDonationMissing = "Donation not found"
)

// --- Implementation ---

func (s *donationService) SubmitDonation(ctx context.Context, actor Actor, req CreateDonationRequest) (DonationResponse, error) {
	resp, err := s.submitDonation(ctx, actor, req)
	s.metrics.ObserveOutcome("submit_donation", outcome(err))
	return resp, err
}

func (s *donationService) submitDonation(ctx context.Context, actor Actor, req CreateDonationRequest) (DonationResponse, error) {
	if !actor.IsDonor() {
		return DonationResponse{}, apperror.Forbidden("Only donors can create donation requests")
	}
	group := model.NormalizeBloodGroup(req.BloodGroup)
	if err := validateBloodGroup(group); err != nil {
		return DonationResponse{}, err
	}
	if req.Quantity <= 0 {
		return DonationResponse{}, apperror.Validation("quantity must be greater than zero")
	}
	if req.Quantity > model.MaxUnitsPerEntry {
		return DonationResponse{}, apperror.Validation(fmt.Sprintf("quantity must not exceed %d units", model.MaxUnitsPerEntry))
	}

	var donation model.Donation
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkCooldown(txCtx, actor.ID); err != nil {
			return err
		}

		pending, err := s.donationRepo.HasPending(txCtx, actor.ID)
		if err != nil {
			return fmt.Errorf("failed to check pending donations: %w", err)
		}
		if pending {
			return apperror.Validation(msgPendingDonation)
		}

		donation = model.Donation{
			DonorID:    actor.ID,
			BloodGroup: group,
			Quantity:   req.Quantity,
			Status:     model.DonationPending,
			Notes:      strings.TrimSpace(req.Notes),
		}
		if err := s.donationRepo.Create(txCtx, &donation); err != nil {
			// A concurrent submission won the one-pending-per-donor index.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Validation(msgPendingDonation)
			}
			return fmt.Errorf("failed to create donation: %w", err)
		}

		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateDonation, donation.ID.String(), group, map[string]any{
			"blood_group": group,
			"quantity":    req.Quantity,
		})
	})
	if err != nil {
		return DonationResponse{}, wrapDBError(err, "failed to create donation")
	}

	s.log.Info(s.log.WithField(ctx, "donation_id", donation.ID.String()), "donation submitted")
	return s.load(ctx, donation.ID)
}

// checkCooldown enforces the wait after the donor's most recent approved donation,
// measured from its approval time.
func (s *donationService) checkCooldown(ctx context.Context, donorID uuid.UUID) error {
	if s.cooldown <= 0 {
		return nil
	}
	latest, err := s.donationRepo.LatestApproved(ctx, donorID)
	if err != nil {
		return fmt.Errorf("failed to load last approved donation: %w", err)
	}
	if latest == nil || latest.ActionDate == nil {
		return nil
	}
	elapsed := s.now().Sub(*latest.ActionDate)
	if elapsed >= s.cooldown {
		return nil
	}
	days := int(math.Ceil((s.cooldown - elapsed).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return apperror.Validation(fmt.Sprintf("You must wait %d more days before donating again", days)).
		WithDetails(map[string]any{"days_remaining": days})
}

func (s *donationService) ReviewDonation(ctx context.Context, actor Actor, id string, req ReviewDonationRequest) (DonationResponse, error) {
	resp, err := s.reviewDonation(ctx, actor, id, req)
	s.metrics.ObserveOutcome("review_donation", outcome(err))
	return resp, err
}

func (s *donationService) reviewDonation(ctx context.Context, actor Actor, id string, req ReviewDonationRequest) (DonationResponse, error) {
	if err := requireAdmin(actor, "Only admins can approve or reject donations"); err != nil {
		return DonationResponse{}, err
	}
	donationID, err := uuid.Parse(id)
	if err != nil {
		return DonationResponse{}, apperror.NotFound(msgDonationMissing)
	}
	decision := strings.ToLower(strings.TrimSpace(req.Status))
	if decision != model.DonationApproved && decision != model.DonationRejected {
		return DonationResponse{}, apperror.Validation("Status must be either 'approved' or 'rejected'")
	}

	var event *InventoryEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		donation, err := s.donationRepo.FindByID(txCtx, donationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(msgDonationMissing)
			}
			return fmt.Errorf("failed to load donation: %w", err)
		}
		if donation.Status != model.DonationPending {
			return apperror.Conflict(msgDonationNotOpen)
		}

		moved, err := s.donationRepo.Transition(txCtx, repository.Transition{
			ID:    donation.ID,
			To:    decision,
			Actor: actor.ID,
			Notes: strings.TrimSpace(req.Notes),
			At:    s.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to update donation: %w", err)
		}
		if !moved {
			return apperror.Conflict(msgDonationNotOpen)
		}

		action := model.ActionRejectDonation
		if decision == model.DonationApproved {
			action = model.ActionApproveDonation
			event, err = s.stock.Apply(txCtx, StockChange{
				BloodGroup: donation.BloodGroup,
				Delta:      donation.Quantity,
				Reason:     model.TxReasonDonationApproved,
				DonationID: &donation.ID,
				Actor:      actor.ID,
				Notes:      fmt.Sprintf("Donation %s approved", donation.ID),
			})
			if err != nil {
				return err
			}
		}

		return writeAudit(txCtx, s.auditRepo, actor, action, donation.ID.String(), donation.BloodGroup, map[string]any{
			"status":      decision,
			"blood_group": donation.BloodGroup,
			"quantity":    donation.Quantity,
		})
	})
	if err != nil {
		return DonationResponse{}, wrapDBError(err, "failed to review donation")
	}

	s.stock.Committed(ctx, event)
	s.log.Info(s.log.WithFields(ctx, map[string]any{"donation_id": id, "status": decision}), "donation reviewed")
	return s.load(ctx, donationID)
}

func (s *donationService) ListDonations(ctx context.Context, actor Actor, filter DonationFilter, p pagination.Params) (pagination.Page[DonationResponse], error) {
	repoFilter := repository.DonationFilter{
		Status: strings.ToLower(strings.TrimSpace(filter.Status)),
		From:   filter.StartDate,
	}
	if !actor.IsAdmin() {
		// Donors see only their own donations.
		repoFilter.DonorID = &actor.ID
	}
	if filter.EndDate != nil {
		end := filter.EndDate.AddDate(0, 0, 1)
		repoFilter.To = &end
	}

	rows, total, err := s.donationRepo.List(ctx, repoFilter, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[DonationResponse]{}, apperror.Internal(err, "failed to list donations")
	}

	items := make([]DonationResponse, 0, len(rows))
	for _, d := range rows {
		items = append(items, toDonationResponse(d))
	}
	return pagination.NewPage(items, total, p), nil
}

func (s *donationService) GetDonation(ctx context.Context, actor Actor, id string) (DonationResponse, error) {
	donationID, err := uuid.Parse(id)
	if err != nil {
		return DonationResponse{}, apperror.NotFound(msgDonationMissing)
	}
	donation, err := s.donationRepo.FindByID(ctx, donationID)
	if err != nil {
		return DonationResponse{}, wrapDBError(err, msgDonationMissing)
	}
	// Other donors' records are reported as missing.
	if !actor.IsAdmin() && donation.DonorID != actor.ID {
		return DonationResponse{}, apperror.NotFound(msgDonationMissing)
	}
	return toDonationResponse(*donation), nil
}

func (s *donationService) load(ctx context.Context, id uuid.UUID) (DonationResponse, error) {
	donation, err := s.donationRepo.FindByID(ctx, id)
	if err != nil {
		return DonationResponse{}, wrapDBError(err, "failed to reload donation")
	}
	return toDonationResponse(*donation), nil
}

func toDonationResponse(d model.Donation) DonationResponse {
	resp := DonationResponse{
		ID:          d.ID.String(),
		DonorID:     d.DonorID.String(),
		BloodGroup:  d.BloodGroup,
		Quantity:    d.Quantity,
		Status:      d.Status,
		Notes:       d.Notes,
		ReviewedBy:  uuidString(d.ReviewedBy),
		RequestDate: d.CreatedAt.UTC().Format(time.RFC3339),
		ActionDate:  formatTime(d.ActionDate),
	}
	if d.Donor != nil {
		resp.DonorName = d.Donor.Username
	}
	if d.Reviewer != nil {
		resp.ReviewerName = d.Reviewer.Username
	}
	return resp
}
