package visit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitpass/internal/api"
	"fitpass/internal/auth"
	"fitpass/internal/logger"
	"fitpass/internal/membership"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Check in at a gym
// @Tags         visits
// @Produce      json
// @Security     BearerAuth
// @Param        gymID path int true "Gym ID"
// @Success      201 {object} Visit
// @Failure      400 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /gyms/{gymID}/checkin [post]
func (h *Handler) CheckIn(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	gymID, err := strconv.Atoi(c.Param("gymID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid gym id"})
		return
	}

	v, err := h.service.CheckIn(c.Request.Context(), userID, gymID)
	switch {
	case errors.Is(err, membership.ErrNoActiveMembership):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "no active membership"})
	case errors.Is(err, membership.ErrNoCredits):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "no credits remaining"})
	case errors.Is(err, ErrGymNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "gym not found"})
	case err != nil:
		logger.Errorf("check-in failed for user %d at gym %d: %v", userID, gymID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to check in"})
	default:
		c.JSON(http.StatusCreated, v)
	}
}

// @Summary      List my visits
// @Tags         visits
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Max rows" default(50)
// @Success      200 {array} Visit
// @Router       /visits [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	visits, err := h.service.History(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Errorf("failed to list visits for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list visits"})
		return
	}

	c.JSON(http.StatusOK, visits)
}
