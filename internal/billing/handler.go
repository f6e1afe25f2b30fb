package billing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fitpass/internal/api"
	"fitpass/internal/auth"
	"fitpass/internal/logger"
	"fitpass/internal/user"
)

type CustomerClient interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
}

type UserStore interface {
	GetUserByID(ctx context.Context, id int) (*user.User, error)
	SetStripeCustomerID(ctx context.Context, userID int, customerID string) error
}

// CustomerHandler provisions the Stripe customer a user needs before they can
// subscribe to a plan.
type CustomerHandler struct {
	stripe CustomerClient
	users  UserStore
}

func NewCustomerHandler(stripe CustomerClient, users UserStore) *CustomerHandler {
	return &CustomerHandler{stripe: stripe, users: users}
}

type customerResponse struct {
	StripeCustomerID string `json:"stripe_customer_id"`
}

// @Summary      Create a billing customer for the current user
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      201 {object} customerResponse
// @Success      200 {object} customerResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /billing/customers [post]
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	u, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("failed to load user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load user"})
		return
	}

	if u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
		c.JSON(http.StatusOK, customerResponse{StripeCustomerID: *u.StripeCustomerID})
		return
	}

	customerID, err := h.stripe.CreateCustomer(c.Request.Context(), u.Email, u.Name)
	if err != nil {
		logger.Errorf("failed to create billing customer for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create billing customer"})
		return
	}

	if err := h.users.SetStripeCustomerID(c.Request.Context(), userID, customerID); err != nil {
		logger.Errorf("failed to store customer id for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to store billing customer"})
		return
	}

	c.JSON(http.StatusCreated, customerResponse{StripeCustomerID: customerID})
}
