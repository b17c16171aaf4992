package handler

import (
	"net/http"

	"bloodbank/internal/middleware"
	"bloodbank/internal/model"
	"bloodbank/internal/service"
	"bloodbank/pkg/pagination"
	"bloodbank/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(middleware.RequireRole(model.RoleAdmin))
	{
		group.GET("/", h.GetAuditLogs)
	}
}

// GetAuditLogs pages through workflow audit entries
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query  string  false  "Action name"
// @Param        entity_id  query  string  false  "Donation, request or blood group"
// @Param        page       query  int     false  "Page number (default 1)"
// @Param        limit      query  int     false  "Number of items per page (default 20)"
// @Success      200  {object}  response.Response{data=pagination.Page[service.AuditLogResponse]}
// @Router       /blood/audit-logs/ [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter := service.AuditFilter{Action: c.Query("action"), EntityID: c.Query("entity_id")}
	page, err := h.auditService.GetAuditLogs(c.Request.Context(), actor, filter, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Audit logs retrieved successfully", page))
}
