package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"secretari/internal/errors"
	"secretari/internal/model"
	"secretari/internal/service"
)

// CouponHandler handles coupon administration.
type CouponHandler struct {
	accountService service.AccountService
}

// NewCouponHandler creates a new coupon handler.
func NewCouponHandler(accountService service.AccountService) *CouponHandler {
	return &CouponHandler{accountService: accountService}
}

// CouponRequest describes one coupon to issue.
type CouponRequest struct {
	Code   string `json:"code" validate:"required,max=64"`
	Model  string `json:"model" validate:"required"`
	Tokens int64  `json:"tokens" validate:"required,gt=0"`
}

// IssueCouponsRequest represents a batch of coupons.
type IssueCouponsRequest struct {
	Coupons []CouponRequest `json:"coupons" validate:"required,min=1,dive"`
}

// IssueCouponsResponse represents the issue response.
type IssueCouponsResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// IssueCoupons godoc
// @Summary Issue coupons
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body IssueCouponsRequest true "Coupons"
// @Success 201 {object} IssueCouponsResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /admin/coupons [post]
func (h *CouponHandler) IssueCoupons(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}
	if claims.Role != model.RoleAdmin {
		return domainError(errors.ErrForbidden)
	}

	var req IssueCouponsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	coupons := make([]model.Coupon, 0, len(req.Coupons))
	for _, item := range req.Coupons {
		coupons = append(coupons, model.Coupon{
			Code:   item.Code,
			Model:  item.Model,
			Tokens: item.Tokens,
		})
	}

	count, err := h.accountService.IssueCoupons(c.Request().Context(), coupons)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, IssueCouponsResponse{
		Message: "coupons issued",
		Count:   count,
	})
}
