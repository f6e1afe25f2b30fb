package membership

import (
	"errors"
	"net/http"

	"fitpass/internal/api"
	"fitpass/internal/auth"
	"fitpass/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Get current membership
// @Tags         memberships
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MembershipWithPlan
// @Failure      404 {object} api.ErrorResponse
// @Router       /memberships/current [get]
func (h *Handler) GetCurrent(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	m, err := h.service.GetCurrent(c.Request.Context(), userID)
	if errors.Is(err, ErrNoActiveMembership) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no active membership"})
		return
	}
	if err != nil {
		logger.Errorf("failed to load membership for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load membership"})
		return
	}

	c.JSON(http.StatusOK, m)
}

// @Summary      Subscribe to a plan
// @Tags         memberships
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SubscribeRequest true "Plan to subscribe to"
// @Success      201 {object} Membership
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /memberships [post]
func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "plan_code is required"})
		return
	}

	m, err := h.service.Subscribe(c.Request.Context(), userID, req.PlanCode)
	switch {
	case errors.Is(err, ErrAlreadySubscribed):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "already subscribed"})
	case errors.Is(err, ErrPlanNotFound):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown plan"})
	case errors.Is(err, ErrNoStripeCustomer):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "create a billing customer first"})
	case err != nil:
		logger.Errorf("failed to subscribe user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to subscribe"})
	default:
		c.JSON(http.StatusCreated, m)
	}
}

// @Summary      Cancel current membership
// @Tags         memberships
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /memberships/current/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	err := h.service.Cancel(c.Request.Context(), userID)
	if errors.Is(err, ErrNoActiveMembership) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no active membership"})
		return
	}
	if err != nil {
		logger.Errorf("failed to cancel membership for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to cancel membership"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "membership canceled"})
}
