package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

// CallbackHistoryReader lists recorded webhook deliveries.
type CallbackHistoryReader interface {
	CallbackHistory(ctx context.Context, paymentID string) ([]models.PaymentCallbackHistory, error)
}

// AdminHandler serves the admin reports and payout moderation. Routes are
// registered behind RequireRole(RoleAdmin).
type AdminHandler struct {
	finance   *services.FinanceService
	callbacks CallbackHistoryReader
}

func NewAdminHandler(finance *services.FinanceService, callbacks CallbackHistoryReader) *AdminHandler {
	return &AdminHandler{finance: finance, callbacks: callbacks}
}

func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.finance.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) Transactions(c echo.Context) error {
	txs, err := h.finance.Transactions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txs)
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.finance.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) UserDetails(c echo.Context) error {
	details, err := h.finance.UserDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

func (h *AdminHandler) ListPayouts(c echo.Context) error {
	payouts, err := h.finance.ListPayouts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payouts)
}

type payoutStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *AdminHandler) UpdatePayoutStatus(c echo.Context) error {
	var req payoutStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	payout, err := h.finance.UpdatePayoutStatus(c.Request().Context(), c.Param("id"), models.PayoutStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payout)
}

// CallbackHistory lists the webhook deliveries of one payment. Needs the
// database; answers 404 when it is not configured.
func (h *AdminHandler) CallbackHistory(c echo.Context) error {
	if h.callbacks == nil {
		return services.NotFoundError("callback history is not available")
	}
	rows, err := h.callbacks.CallbackHistory(c.Request().Context(), c.Param("paymentId"))
	if err != nil {
		return services.UpstreamError("failed to load callback history", err)
	}
	return c.JSON(http.StatusOK, rows)
}
