package plan

import (
	"net/http"

	"fitpass/internal/api"
	"fitpass/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo *Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

// @Summary      List active plans
// @Tags         plans
// @Produce      json
// @Success      200 {array} Plan
// @Failure      500 {object} api.ErrorResponse
// @Router       /plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to list plans: %v", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load plans"})
		return
	}

	c.JSON(http.StatusOK, plans)
}
