package service

import (
	"context"
	"errors"
	"fmt"
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

type CreateBloodRequestRequest struct {
	BloodGroup  string `json:"blood_group" binding:"required,bloodgroup"`
	Quantity    int    `json:"quantity" binding:"required,gt=0,lte=1000"`
	PatientName string `json:"patient_name" binding:"required,max=100"`
	Hospital    string `json:"hospital" binding:"required,max=200"`
	Urgency     bool   `json:"urgency"`
	Notes       string `json:"notes" binding:"max=1000"`
}

type ActionBloodRequestRequest struct {
	Status string `json:"status" binding:"required"` // fulfilled or denied
	Notes  string `json:"notes" binding:"max=1000"`
}

type BloodRequestFilter struct {
	Status    string
	Urgency   *bool
	StartDate *time.Time
	EndDate   *time.Time
}

type BloodRequestResponse struct {
	ID              string  `json:"id"`
	RequestedBy     string  `json:"requested_by"`
	RequestedByName string  `json:"requested_by_name"`
	BloodGroup      string  `json:"blood_group"`
	Quantity        int     `json:"quantity"`
	PatientName     string  `json:"patient_name"`
	Hospital        string  `json:"hospital"`
	Urgency         bool    `json:"urgency"`
	Status          string  `json:"status"`
	Notes           string  `json:"notes"`
	ActionedBy      *string `json:"actioned_by"`
	RequestDate     string  `json:"request_date"`
	ActionDate      *string `json:"action_date"`
}

// --- Interface ---

type BloodRequestService interface {
	SubmitBloodRequest(ctx context.Context, actor Actor, req CreateBloodRequestRequest) (BloodRequestResponse, error)
	ActionBloodRequest(ctx context.Context, actor Actor, id string, req ActionBloodRequestRequest) (BloodRequestResponse, error)
	ListBloodRequests(ctx context.Context, actor Actor, filter BloodRequestFilter, p pagination.Params) (pagination.Page[BloodRequestResponse], error)
	GetBloodRequest(ctx context.Context, actor Actor, id string) (BloodRequestResponse, error)
}

type bloodRequestService struct {
	requestRepo repository.BloodRequestRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	stock       *StockLedger
	metrics     *metrics.WorkflowMetrics
	log         *logger.Logger
	now         func() time.Time
}

func NewBloodRequestService(
	requestRepo repository.BloodRequestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	stock *StockLedger,
	m *metrics.WorkflowMetrics,
	log *logger.Logger,
) BloodRequestService {
	if log == nil {
		log = logger.Nop()
	}
	return &bloodRequestService{
		requestRepo: requestRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		stock:       stock,
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

const (
	msgRequestNotOpen = "Only pending requests can be fulfilled or denied"
	msgRequestMissing = "Blood request not found"
)

// --- Implementation ---

func (s *bloodRequestService) SubmitBloodRequest(ctx context.Context, actor Actor, req CreateBloodRequestRequest) (BloodRequestResponse, error) {
	resp, err := s.submitBloodRequest(ctx, actor, req)
	s.metrics.ObserveOutcome("submit_blood_request", outcome(err))
	return resp, err
}

// No stock check here; availability is decided at fulfilment time.
func (s *bloodRequestService) submitBloodRequest(ctx context.Context, actor Actor, req CreateBloodRequestRequest) (BloodRequestResponse, error) {
	if err := requireAdmin(actor, "Only admins can create blood requests"); err != nil {
		return BloodRequestResponse{}, err
	}
	group := model.NormalizeBloodGroup(req.BloodGroup)
	if err := validateBloodGroup(group); err != nil {
		return BloodRequestResponse{}, err
	}
	if req.Quantity <= 0 {
		return BloodRequestResponse{}, apperror.Validation("quantity must be greater than zero")
	}
	if req.Quantity > model.MaxUnitsPerEntry {
		return BloodRequestResponse{}, apperror.Validation(fmt.Sprintf("quantity must not exceed %d units", model.MaxUnitsPerEntry))
	}
	patient := strings.TrimSpace(req.PatientName)
	hospital := strings.TrimSpace(req.Hospital)
	if patient == "" || hospital == "" {
		return BloodRequestResponse{}, apperror.Validation("patient name and hospital are required")
	}

	request := model.BloodRequest{
		RequestedBy: actor.ID,
		BloodGroup:  group,
		Quantity:    req.Quantity,
		PatientName: patient,
		Hospital:    hospital,
		Urgency:     req.Urgency,
		Status:      model.RequestPending,
		Notes:       strings.TrimSpace(req.Notes),
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, &request); err != nil {
			return fmt.Errorf("failed to create blood request: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateRequest, request.ID.String(), hospital, map[string]any{
			"blood_group": group,
			"quantity":    req.Quantity,
			"urgency":     req.Urgency,
		})
	})
	if err != nil {
		return BloodRequestResponse{}, wrapDBError(err, "failed to create blood request")
	}

	s.log.Info(s.log.WithField(ctx, "blood_request_id", request.ID.String()), "blood request submitted")
	return s.load(ctx, request.ID)
}

func (s *bloodRequestService) ActionBloodRequest(ctx context.Context, actor Actor, id string, req ActionBloodRequestRequest) (BloodRequestResponse, error) {
	resp, err := s.actionBloodRequest(ctx, actor, id, req)
	s.metrics.ObserveOutcome("action_blood_request", outcome(err))
	return resp, err
}

func (s *bloodRequestService) actionBloodRequest(ctx context.Context, actor Actor, id string, req ActionBloodRequestRequest) (BloodRequestResponse, error) {
	if err := requireAdmin(actor, "Only admins can fulfil or deny blood requests"); err != nil {
		return BloodRequestResponse{}, err
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return BloodRequestResponse{}, apperror.NotFound(msgRequestMissing)
	}
	decision := strings.ToLower(strings.TrimSpace(req.Status))
	if decision != model.RequestFulfilled && decision != model.RequestDenied {
		return BloodRequestResponse{}, apperror.Validation("Status must be either 'fulfilled' or 'denied'")
	}

	var event *InventoryEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requestRepo.FindByID(txCtx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(msgRequestMissing)
			}
			return fmt.Errorf("failed to load blood request: %w", err)
		}
		if request.Status != model.RequestPending {
			return apperror.Conflict(msgRequestNotOpen)
		}

		moved, err := s.requestRepo.Transition(txCtx, repository.Transition{
			ID:    request.ID,
			To:    decision,
			Actor: actor.ID,
			Notes: strings.TrimSpace(req.Notes),
			At:    s.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to update blood request: %w", err)
		}
		if !moved {
			return apperror.Conflict(msgRequestNotOpen)
		}

		action := model.ActionDenyRequest
		if decision == model.RequestFulfilled {
			action = model.ActionFulfillRequest
			// Insufficient stock rolls back the status change as well.
			event, err = s.stock.Apply(txCtx, StockChange{
				BloodGroup:     request.BloodGroup,
				Delta:          -request.Quantity,
				Reason:         model.TxReasonRequestFulfilled,
				BloodRequestID: &request.ID,
				Actor:          actor.ID,
				Notes:          fmt.Sprintf("Blood request %s fulfilled for %s", request.ID, request.Hospital),
			})
			if err != nil {
				return err
			}
		}

		return writeAudit(txCtx, s.auditRepo, actor, action, request.ID.String(), request.Hospital, map[string]any{
			"status":      decision,
			"blood_group": request.BloodGroup,
			"quantity":    request.Quantity,
		})
	})
	if err != nil {
		return BloodRequestResponse{}, wrapDBError(err, "failed to action blood request")
	}

	s.stock.Committed(ctx, event)
	s.log.Info(s.log.WithFields(ctx, map[string]any{"blood_request_id": id, "status": decision}), "blood request actioned")
	return s.load(ctx, requestID)
}

func (s *bloodRequestService) ListBloodRequests(ctx context.Context, actor Actor, filter BloodRequestFilter, p pagination.Params) (pagination.Page[BloodRequestResponse], error) {
	if err := requireAdmin(actor, "Only admins can view blood requests"); err != nil {
		return pagination.Page[BloodRequestResponse]{}, err
	}

	repoFilter := repository.BloodRequestFilter{
		Status:  strings.ToLower(strings.TrimSpace(filter.Status)),
		Urgency: filter.Urgency,
		From:    filter.StartDate,
	}
	if filter.EndDate != nil {
		end := filter.EndDate.AddDate(0, 0, 1)
		repoFilter.To = &end
	}

	rows, total, err := s.requestRepo.List(ctx, repoFilter, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[BloodRequestResponse]{}, apperror.Internal(err, "failed to list blood requests")
	}
	items := make([]BloodRequestResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, toBloodRequestResponse(r))
	}
	return pagination.NewPage(items, total, p), nil
}

func (s *bloodRequestService) GetBloodRequest(ctx context.Context, actor Actor, id string) (BloodRequestResponse, error) {
	if err := requireAdmin(actor, "Only admins can view blood requests"); err != nil {
		return BloodRequestResponse{}, err
	}
	requestID, err := uuid.Parse(id)
	if err != nil {
		return BloodRequestResponse{}, apperror.NotFound(msgRequestMissing)
	}
	return s.load(ctx, requestID)
}

func (s *bloodRequestService) load(ctx context.Context, id uuid.UUID) (BloodRequestResponse, error) {
	request, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return BloodRequestResponse{}, wrapDBError(err, msgRequestMissing)
	}
	return toBloodRequestResponse(*request), nil
}

func toBloodRequestResponse(r model.BloodRequest) BloodRequestResponse {
	resp := BloodRequestResponse{
		ID:          r.ID.String(),
		RequestedBy: r.RequestedBy.String(),
		BloodGroup:  r.BloodGroup,
		Quantity:    r.Quantity,
		PatientName: r.PatientName,
		Hospital:    r.Hospital,
		Urgency:     r.Urgency,
		Status:      r.Status,
		Notes:       r.Notes,
		ActionedBy:  uuidString(r.ActionedBy),
		RequestDate: r.CreatedAt.UTC().Format(time.RFC3339),
		ActionDate:  formatTime(r.ActionDate),
	}
	if r.Requester != nil {
		resp.RequestedByName = r.Requester.Username
	}
	return resp
}
