package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/middleware"
	"timeplus_app/internal/services"
)

const maxWebhookBody = 1 << 20

// PaymentHandler serves payment initiation and the gateway webhook.
type PaymentHandler struct {
	payments      *services.PaymentService
	webhookSecret string
	log           *zap.Logger
}

func NewPaymentHandler(payments *services.PaymentService, webhookSecret string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhookSecret: webhookSecret, log: log}
}

// CreatePayment starts a card checkout.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var in services.CardPaymentInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	res, err := h.payments.InitiateCardPayment(c.Request().Context(), getStringFromContext(c, middleware.ContextUserUID), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// CreatePixPayment starts a PIX charge.
func (h *PaymentHandler) CreatePixPayment(c echo.Context) error {
	var in services.PixPaymentInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	res, err := h.payments.InitiatePixPayment(c.Request().Context(), getStringFromContext(c, middleware.ContextUserUID), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type webhookBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// rawID accepts a JSON string or number.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseNotification reads the JSON body, falling back to the query
// parameters the gateway uses for IPN-style deliveries.
func parseNotification(c echo.Context, raw []byte) services.Notification {
	n := services.Notification{
		RequestID: c.Request().Header.Get("x-request-id"),
		Raw:       raw,
	}

	var body webhookBody
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err == nil {
			n.Type = body.Type
			if n.Type == "" {
				n.Type = body.Topic
			}
			n.DataID = rawID(body.Data.ID)
		}
	}

	if n.Type == "" {
		n.Type = c.QueryParam("type")
		if n.Type == "" {
			n.Type = c.QueryParam("topic")
		}
	}
	if n.DataID == "" {
		n.DataID = c.QueryParam("data.id")
		if n.DataID == "" {
			n.DataID = c.QueryParam("id")
		}
	}
	return n
}

// Webhook receives gateway notifications. 200 acknowledges the delivery,
// 400 rejects a malformed reference and 500 asks the gateway to retry.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}

	n := parseNotification(c, raw)
	h.log.Info("paymentHandler.Webhook received",
		zap.String("type", n.Type),
		zap.String("dataId", n.DataID),
		zap.String("requestId", n.RequestID),
	)

	if h.webhookSecret != "" {
		signature := c.Request().Header.Get("x-signature")
		if !services.VerifyWebhookSignature(h.webhookSecret, signature, n.RequestID, n.DataID) {
			h.log.Warn("paymentHandler.Webhook invalid signature", zap.String("dataId", n.DataID))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid signature.")
		}
	}

	res, err := h.payments.HandleNotification(c.Request().Context(), n)
	if err != nil {
		return err
	}

	h.log.Info("paymentHandler.Webhook handled",
		zap.String("dataId", n.DataID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("sessionKey", res.SessionKey),
	)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
