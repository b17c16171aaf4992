package handler

import (
	"net/http"

	"bloodbank/internal/middleware"
	"bloodbank/internal/model"
	"bloodbank/internal/service"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/pagination"
	"bloodbank/pkg/response"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
	dashboardService service.DashboardService
	log              *logger.Logger
}

func NewInventoryHandler(inventoryService service.InventoryService, dashboardService service.DashboardService, log *logger.Logger) *InventoryHandler {
	RegisterValidators()
	return &InventoryHandler{inventoryService: inventoryService, dashboardService: dashboardService, log: log}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/inventory/", h.GetInventory)

	admin := router.Group("")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	{
		admin.POST("/inventory/adjust/", h.AdjustInventory)
		admin.GET("/inventory/reconcile/", h.ReconcileLedger)
		admin.GET("/transactions/", h.ListTransactions)
		admin.GET("/dashboard/", h.GetDashboard)
	}
}

// GetInventory returns current stock for every blood group
// @Summary      Inventory levels
// @Description  One row per blood group in fixed order with its low-stock flag
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.InventoryLevelResponse}
// @Router       /blood/inventory/ [get]
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	levels, err := h.inventoryService.GetInventorySnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Inventory levels retrieved successfully", levels))
}

// AdjustInventory applies a manual correction through the ledger
// @Summary      Adjust inventory
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body  service.AdjustInventoryRequest  true  "Adjustment"
// @Success      200  {object}  response.Response{data=service.InventoryLevelResponse}
// @Failure      400  {object}  response.Response
// @Router       /blood/inventory/adjust/ [post]
func (h *InventoryHandler) AdjustInventory(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.AdjustInventoryRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	level, err := h.inventoryService.AdjustInventory(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Inventory adjusted successfully", level))
}

// ReconcileLedger compares stored quantities with ledger sums
// @Summary      Reconcile ledger
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.ReconciliationReport}
// @Router       /blood/inventory/reconcile/ [get]
func (h *InventoryHandler) ReconcileLedger(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.inventoryService.ReconcileLedger(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if !report.Consistent {
		h.log.Warn(h.log.WithField(c.Request.Context(), "groups", len(report.Groups)), "inventory ledger drift detected")
	}
	c.JSON(http.StatusOK, response.Success("Ledger reconciliation completed", report))
}

// ListTransactions pages through the inventory ledger
// @Summary      Inventory transactions
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        blood_group  query  string  false  "Blood group"
// @Param        reason       query  string  false  "donation_approved, request_fulfilled or adjustment"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        limit        query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=pagination.Page[service.TransactionResponse]}
// @Router       /blood/transactions/ [get]
func (h *InventoryHandler) ListTransactions(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter := service.TransactionFilter{BloodGroup: c.Query("blood_group"), Reason: c.Query("reason")}
	page, err := h.inventoryService.ListTransactions(c.Request.Context(), actor, filter, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Inventory transactions retrieved successfully", page))
}

// GetDashboard returns the admin overview
// @Summary      Dashboard
// @Tags         dashboard
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.DashboardResponse}
// @Router       /blood/dashboard/ [get]
func (h *InventoryHandler) GetDashboard(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := h.dashboardService.GetDashboardSnapshot(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Dashboard data retrieved successfully", snapshot))
}
