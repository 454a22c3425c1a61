package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"timeplus_app/internal/config"
)

const (
	CurrencyBRL = "BRL"

	PaymentStatusApproved = "approved"
	PaymentMethodPix      = "pix"
)

// GatewayError is a non-2xx answer from the payment gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("mercado pago responded %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether repeating the same request may succeed.
func (e *GatewayError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type PreferenceItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type Payer struct {
	Email string `json:"email"`
}

type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             Payer            `json:"payer"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url"`
}

type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type PixPaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	Payer             Payer   `json:"payer"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url"`
}

type PixPayment struct {
	ID           json.Number `json:"id"`
	Status       string      `json:"status"`
	QRCode       string      `json:"-"`
	QRCodeBase64 string      `json:"-"`
	TicketURL    string      `json:"-"`

	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// Payment is the authoritative state of a gateway payment.
type Payment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	PaymentMethodID   string      `json:"payment_method_id"`
	PaymentTypeID     string      `json:"payment_type_id"`
}

// IsApproved reports whether the payment was captured.
func (p *Payment) IsApproved() bool {
	return p.Status == PaymentStatusApproved
}

// Method is the payment method id, falling back to the payment type.
func (p *Payment) Method() string {
	if p.PaymentMethodID != "" {
		return p.PaymentMethodID
	}
	return p.PaymentTypeID
}

// PaymentGateway is the subset of the Mercado Pago API the services use.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest, idempotencyKey string) (*Preference, error)
	CreatePixPayment(ctx context.Context, req PixPaymentRequest, idempotencyKey string) (*PixPayment, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// MercadoPagoClient talks to the Mercado Pago REST API. Requests that fail
// with a network error, 429 or 5xx are retried with exponential backoff;
// charge creation keeps the same idempotency key across attempts.
type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client
	log         *zap.Logger
}

func NewMercadoPagoClient(cfg config.MercadoPago, log *zap.Logger) *MercadoPagoClient {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &MercadoPagoClient{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		maxAttempts: attempts,
		backoffBase: 200 * time.Millisecond,
		client:      &http.Client{Timeout: cfg.Timeout},
		log:         log,
	}
}

// WithBackoffBase overrides the first retry delay.
func (c *MercadoPagoClient) WithBackoffBase(d time.Duration) *MercadoPagoClient {
	c.backoffBase = d
	return c
}

func (c *MercadoPagoClient) CreatePreference(ctx context.Context, req PreferenceRequest, idempotencyKey string) (*Preference, error) {
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, idempotencyKey, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

func (c *MercadoPagoClient) CreatePixPayment(ctx context.Context, req PixPaymentRequest, idempotencyKey string) (*PixPayment, error) {
	var payment PixPayment
	if err := c.do(ctx, http.MethodPost, "/v1/payments", req, idempotencyKey, &payment); err != nil {
		return nil, err
	}
	data := payment.PointOfInteraction.TransactionData
	payment.QRCode = data.QRCode
	payment.QRCodeBase64 = data.QRCodeBase64
	payment.TicketURL = data.TicketURL
	return &payment, nil
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *MercadoPagoClient) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string, out interface{}) error {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = data
	}

	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoffBase))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.once(ctx, method, path, body, idempotencyKey, out)
		if err == nil {
			return nil
		}

		var gwErr *GatewayError
		if errors.As(err, &gwErr) && !gwErr.Retryable() {
			return err
		}
		c.log.Warn("mercadoPagoClient.do retrying request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
}

func (c *MercadoPagoClient) once(ctx context.Context, method, path string, body []byte, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// VerifyWebhookSignature checks the x-signature header Mercado Pago sends
// with notifications: "ts=<unix>,v1=<hex hmac>", where the HMAC-SHA256 is
// computed over "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func VerifyWebhookSignature(secret, signatureHeader, requestID, dataID string) bool {
	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}
