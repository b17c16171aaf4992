package service

import (
	"context"

	"bloodbank/internal/repository"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/pagination"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditFilter struct {
	Action   string
	EntityID string
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, actor Actor, filter AuditFilter, p pagination.Params) (pagination.Page[AuditLogResponse], error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs pages through audit records with users preloaded.
func (s *auditService) GetAuditLogs(ctx context.Context, actor Actor, filter AuditFilter, p pagination.Params) (pagination.Page[AuditLogResponse], error) {
	if err := requireAdmin(actor, "Only admins can view audit logs"); err != nil {
		return pagination.Page[AuditLogResponse]{}, err
	}

	logs, total, err := s.auditRepo.List(ctx, repository.AuditFilter{Action: filter.Action, EntityID: filter.EntityID}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[AuditLogResponse]{}, apperror.Internal(err, "failed to list audit logs")
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return pagination.NewPage(res, total, p), nil
}
