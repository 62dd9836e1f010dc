package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"secretari/internal/errors"
	"secretari/internal/model"
	"secretari/internal/service"
)

const defaultUsageLimit = 50

// AccountHandler handles the token balance endpoints of the caller.
type AccountHandler struct {
	accountService service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// RedeemCoupon godoc
// @Summary Redeem a coupon
// @Description Credits the coupon's tokens to the caller. A coupon can be redeemed once.
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param coupon query string true "Coupon code"
// @Success 200 {object} model.UserView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/redeem [post]
func (h *AccountHandler) RedeemCoupon(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	code := c.QueryParam("coupon")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "coupon is required",
			Code:  "INVALID_COUPON",
		})
	}

	rec, err := h.accountService.RedeemCoupon(c.Request().Context(), claims.Username, code)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, rec.View())
}

// UsageHistory godoc
// @Summary List recent model usage
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of events"
// @Success 200 {array} model.UsageEvent
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/usage [get]
func (h *AccountHandler) UsageHistory(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	limit := defaultUsageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid limit",
				Code:  "INVALID_INPUT",
			})
		}
		limit = n
	}

	events, err := h.accountService.UsageHistory(c.Request().Context(), claims.Username, limit)
	if err != nil {
		return domainError(err)
	}
	if events == nil {
		events = []model.UsageEvent{}
	}

	return c.JSON(http.StatusOK, events)
}
