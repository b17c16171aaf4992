package handler

import (
	"net/http"
	"strconv"

	"bloodbank/internal/middleware"
	"bloodbank/internal/model"
	"bloodbank/internal/service"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/pagination"
	"bloodbank/pkg/response"

	"github.com/gin-gonic/gin"
)

type BloodRequestHandler struct {
	requestService service.BloodRequestService
}

func NewBloodRequestHandler(requestService service.BloodRequestService) *BloodRequestHandler {
	RegisterValidators()
	return &BloodRequestHandler{requestService: requestService}
}

func (h *BloodRequestHandler) RegisterRoutes(router *gin.RouterGroup, idempotent gin.HandlerFunc) {
	requests := router.Group("/requests")
	requests.Use(middleware.RequireRole(model.RoleAdmin))
	{
		requests.GET("/", h.ListBloodRequests)
		requests.POST("/create/", idempotent, h.CreateBloodRequest)
		requests.GET("/:id/", h.GetBloodRequest)
		requests.PATCH("/:id/action/", h.ActionBloodRequest)
	}
}

// CreateBloodRequest records a hospital request; stock is checked only on fulfilment
// @Summary      Create blood request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                              false  "Replay-safe retry key"
// @Param        request          body    service.CreateBloodRequestRequest  true   "Request"
// @Success      201  {object}  response.Response{data=service.BloodRequestResponse}
// @Failure      400  {object}  response.Response
// @Router       /blood/requests/create/ [post]
func (h *BloodRequestHandler) CreateBloodRequest(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.CreateBloodRequestRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	created, err := h.requestService.SubmitBloodRequest(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success("Blood request created successfully", created))
}

// ListBloodRequests lists requests, urgent ones first
// @Summary      List blood requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        status      query  string  false  "pending, fulfilled or denied"
// @Param        urgency     query  bool    false  "Only urgent (true) or routine (false)"
// @Param        start_date  query  string  false  "YYYY-MM-DD"
// @Param        end_date    query  string  false  "YYYY-MM-DD"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        limit       query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=pagination.Page[service.BloodRequestResponse]}
// @Router       /blood/requests/ [get]
func (h *BloodRequestHandler) ListBloodRequests(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter := service.BloodRequestFilter{Status: c.Query("status")}
	if raw := c.Query("urgency"); raw != "" {
		urgent, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, apperror.Validation("Invalid urgency").WithDetails(map[string]string{"urgency": "Use true or false."}))
			return
		}
		filter.Urgency = &urgent
	}
	if filter.StartDate, err = dateQuery(c, "start_date"); err != nil {
		respondError(c, err)
		return
	}
	if filter.EndDate, err = dateQuery(c, "end_date"); err != nil {
		respondError(c, err)
		return
	}

	page, err := h.requestService.ListBloodRequests(c.Request.Context(), actor, filter, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Blood requests retrieved successfully", page))
}

// GetBloodRequest returns one request
// @Summary      Blood request detail
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.BloodRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /blood/requests/{id}/ [get]
func (h *BloodRequestHandler) GetBloodRequest(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	found, err := h.requestService.GetBloodRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Blood request details retrieved successfully", found))
}

// ActionBloodRequest fulfils or denies a pending request
// @Summary      Fulfil or deny blood request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                              true  "Request ID"
// @Param        request  body  service.ActionBloodRequestRequest  true  "Decision"
// @Success      200  {object}  response.Response{data=service.BloodRequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /blood/requests/{id}/action/ [patch]
func (h *BloodRequestHandler) ActionBloodRequest(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.ActionBloodRequestRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.requestService.ActionBloodRequest(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Blood request "+updated.Status+" successfully", updated))
}
