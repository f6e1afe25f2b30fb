package payout

import (
	"net/http"
	"time"

	"fitpass/internal/api"
	"fitpass/internal/logger"

	"github.com/gin-gonic/gin"
)

// Handler exposes the operator-facing payout surface. The run endpoint is what
// the external scheduler hits once per billing cycle.
type Handler struct {
	agg  *Aggregator
	repo *Repository
}

func NewHandler(agg *Aggregator, repo *Repository) *Handler {
	return &Handler{agg: agg, repo: repo}
}

// @Summary      Run payout aggregation for a period
// @Tags         payouts
// @Produce      json
// @Param        period query string false "Billing period (YYYY-MM), defaults to previous month"
// @Success      200 {object} RunReport
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/payouts/run [post]
func (h *Handler) RunPayouts(c *gin.Context) {
	raw := c.Query("period")
	var period Period
	if raw == "" {
		period = PreviousPeriod(time.Now())
	} else {
		parsed, err := ParsePeriod(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "period must be YYYY-MM"})
			return
		}
		period = parsed
	}

	report, err := h.agg.Run(c.Request.Context(), period)
	if err == ErrRunInProgress {
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "payout run already in progress"})
		return
	}
	if err != nil {
		logger.Errorf("payout run for %s failed: %v", period, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "payout run failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// @Summary      List transfer logs for a period
// @Tags         payouts
// @Produce      json
// @Param        period path string true "Billing period (YYYY-MM)"
// @Success      200 {array} TransferLog
// @Failure      400 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/payouts/{period}/transfers [get]
func (h *Handler) ListTransfers(c *gin.Context) {
	period, err := ParsePeriod(c.Param("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "period must be YYYY-MM"})
		return
	}

	logs, err := h.repo.ListTransfersByPeriod(c.Request.Context(), period)
	if err != nil {
		logger.Errorf("failed to list transfers for %s: %v", period, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transfer logs"})
		return
	}

	c.JSON(http.StatusOK, logs)
}

// @Summary      List carried (deferred) balances per gym
// @Tags         payouts
// @Produce      json
// @Success      200 {array} CarriedBalance
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/carried-balances [get]
func (h *Handler) ListCarriedBalances(c *gin.Context) {
	balances, err := h.repo.ListCarriedBalances(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to list carried balances: %v", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load carried balances"})
		return
	}

	c.JSON(http.StatusOK, balances)
}
