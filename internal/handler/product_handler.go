package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProductHandler serves the in-app purchase catalog.
type ProductHandler struct {
	productIDs []byte
}

// NewProductHandler creates a handler for the given JSON product id list.
func NewProductHandler(productIDs string) *ProductHandler {
	return &ProductHandler{productIDs: []byte(productIDs)}
}

// ProductIDs godoc
// @Summary List in-app purchase product ids
// @Tags products
// @Produce json
// @Success 200 {array} string
// @Router /productids [get]
func (h *ProductHandler) ProductIDs(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, h.productIDs)
}
