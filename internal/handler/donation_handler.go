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

type DonationHandler struct {
	donationService service.DonationService
}

func NewDonationHandler(donationService service.DonationService) *DonationHandler {
	RegisterValidators()
	return &DonationHandler{donationService: donationService}
}

// RegisterRoutes expects an authenticated group; idempotent wraps the create call.
func (h *DonationHandler) RegisterRoutes(router *gin.RouterGroup, idempotent gin.HandlerFunc) {
	donations := router.Group("/donations")
	{
		donations.GET("/", h.ListDonations)
		donations.POST("/create/", middleware.RequireRole(model.RoleDonor), idempotent, h.CreateDonation)
		donations.GET("/:id/", h.GetDonation)
		donations.PATCH("/:id/action/", middleware.RequireRole(model.RoleAdmin), h.ReviewDonation)
	}
}

// CreateDonation submits a donation request for the calling donor
// @Summary      Create donation request
// @Tags         donations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                          false  "Replay-safe retry key"
// @Param        request          body    service.CreateDonationRequest  true   "Donation"
// @Success      201  {object}  response.Response{data=service.DonationResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /blood/donations/create/ [post]
func (h *DonationHandler) CreateDonation(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.CreateDonationRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	donation, err := h.donationService.SubmitDonation(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success("Donation request created successfully", donation))
}

// ListDonations lists donations; donors only see their own
// @Summary      List donations
// @Tags         donations
// @Security     BearerAuth
// @Produce      json
// @Param        status      query  string  false  "pending, approved or rejected"
// @Param        start_date  query  string  false  "YYYY-MM-DD"
// @Param        end_date    query  string  false  "YYYY-MM-DD"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        limit       query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=pagination.Page[service.DonationResponse]}
// @Router       /blood/donations/ [get]
func (h *DonationHandler) ListDonations(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	start, err := dateQuery(c, "start_date")
	if err != nil {
		respondError(c, err)
		return
	}
	end, err := dateQuery(c, "end_date")
	if err != nil {
		respondError(c, err)
		return
	}

	filter := service.DonationFilter{Status: c.Query("status"), StartDate: start, EndDate: end}
	page, err := h.donationService.ListDonations(c.Request.Context(), actor, filter, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Donations retrieved successfully", page))
}

// GetDonation returns one donation
// @Summary      Donation detail
// @Tags         donations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Donation ID"
// @Success      200  {object}  response.Response{data=service.DonationResponse}
// @Failure      404  {object}  response.Response
// @Router       /blood/donations/{id}/ [get]
func (h *DonationHandler) GetDonation(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	donation, err := h.donationService.GetDonation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Donation details retrieved successfully", donation))
}

// ReviewDonation approves or rejects a pending donation
// @Summary      Review donation
// @Tags         donations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Donation ID"
// @Param        request  body  service.ReviewDonationRequest  true  "Decision"
// @Success      200  {object}  response.Response{data=service.DonationResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /blood/donations/{id}/action/ [patch]
func (h *DonationHandler) ReviewDonation(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req service.ReviewDonationRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	donation, err := h.donationService.ReviewDonation(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success("Donation "+donation.Status+" successfully", donation))
}
