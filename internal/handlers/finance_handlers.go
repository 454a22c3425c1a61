package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"timeplus_app/internal/services"
)

// FinanceHandler serves the psychologist's earnings and payout requests.
type FinanceHandler struct {
	finance *services.FinanceService
}

func NewFinanceHandler(finance *services.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

func (h *FinanceHandler) Overview(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	overview, err := h.finance.Overview(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

func (h *FinanceHandler) RequestPayout(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	payout, err := h.finance.RequestPayout(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, payout)
}
