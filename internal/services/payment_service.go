package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timeplus_app/internal/booking"
	"timeplus_app/internal/config"
	"timeplus_app/internal/models"
)

const (
	confirmedPaymentTTL = 7 * 24 * time.Hour
	reconcileDelay      = 5 * time.Minute

	NotificationTypePayment = "payment"
)

// CardPaymentInput is the body of POST /api/create-payment.
type CardPaymentInput struct {
	PsychologistName       string  `json:"psychologistName"`
	Rate                   float64 `json:"rate"`
	PsychologistID         string  `json:"psychologistId"`
	SessionTimestampMillis int64   `json:"sessionTimestampMillis"`
	PayerEmail             string  `json:"payerEmail"`
	PatientID              string  `json:"patientId"`
}

type CardPaymentResult struct {
	PreferenceID string `json:"preferenceId"`
	InitPoint    string `json:"initPoint,omitempty"`
}

// PixPaymentInput is the body of POST /api/create-pix-payment.
type PixPaymentInput struct {
	Rate                   float64 `json:"rate"`
	Description            string  `json:"description"`
	PayerEmail             string  `json:"payerEmail"`
	PsychologistID         string  `json:"psychologistId"`
	SessionTimestampMillis int64   `json:"sessionTimestampMillis"`
	PatientID              string  `json:"patientId"`
}

type PixPaymentResult struct {
	PaymentID    string `json:"paymentId"`
	QRCode       string `json:"qrCode"`
	QRCodeBase64 string `json:"qrCodeBase64"`
}

// Notification is a gateway webhook delivery.
type Notification struct {
	Type      string
	DataID    string
	RequestID string
	Raw       []byte
}

// ConfirmationResult describes what a confirmation attempt did.
type ConfirmationResult struct {
	Outcome    models.CallbackOutcome
	PaymentID  string
	SessionKey string
	Session    *models.Session
	Detail     string
}

// PaymentService starts payments and turns approved payments into sessions.
type PaymentService struct {
	store     Store
	gateway   PaymentGateway
	cfg       *config.Config
	cache     *RedisCache
	recorder  CallbackRecorder
	scheduler TaskScheduler
	log       *zap.Logger

	newIdempotencyKey func() string
	now               func() time.Time
}

// PaymentServiceOption configures optional collaborators.
type PaymentServiceOption func(*PaymentService)

func WithPaymentCache(cache *RedisCache) PaymentServiceOption {
	return func(s *PaymentService) { s.cache = cache }
}

func WithCallbackRecorder(r CallbackRecorder) PaymentServiceOption {
	return func(s *PaymentService) { s.recorder = r }
}

func WithTaskScheduler(t TaskScheduler) PaymentServiceOption {
	return func(s *PaymentService) { s.scheduler = t }
}

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) { s.now = now }
}

func WithIdempotencyKeys(gen func() string) PaymentServiceOption {
	return func(s *PaymentService) { s.newIdempotencyKey = gen }
}

func NewPaymentService(store Store, gateway PaymentGateway, cfg *config.Config, log *zap.Logger, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		store:             store,
		gateway:           gateway,
		cfg:               cfg,
		log:               log,
		newIdempotencyKey: uuid.NewString,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type bookingRequest struct {
	rate           float64
	psychologistID string
	timestampMs    int64
	payerEmail     string
	patientID      string
}

func (r bookingRequest) validate() error {
	if r.rate <= 0 {
		return ValidationError("rate must be a positive number")
	}
	var missing []string
	if strings.TrimSpace(r.psychologistID) == "" {
		missing = append(missing, "psychologistId")
	}
	if r.timestampMs == 0 {
		missing = append(missing, "sessionTimestampMillis")
	}
	if strings.TrimSpace(r.payerEmail) == "" {
		missing = append(missing, "payerEmail")
	}
	if strings.TrimSpace(r.patientID) == "" {
		missing = append(missing, "patientId")
	}
	if len(missing) > 0 {
		return ValidationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// prepareBooking runs every check shared by both payment variants and
// returns the reference, the session key and the psychologist. callerID is
// the authenticated user and must match the patient.
func (s *PaymentService) prepareBooking(ctx context.Context, callerID string, req bookingRequest) (string, string, *models.User, error) {
	if err := req.validate(); err != nil {
		return "", "", nil, err
	}
	if err := s.cfg.MercadoPago.Check(s.cfg.App.PublicBaseURL); err != nil {
		s.log.Error("paymentService.prepareBooking gateway not configured", zap.Error(err))
		return "", "", nil, ConfigError(err)
	}

	ref, err := booking.BuildReference(req.psychologistID, req.timestampMs, req.patientID)
	if err != nil {
		return "", "", nil, ValidationError("invalid booking: %v", err)
	}
	if callerID != "" && callerID != req.patientID {
		return "", "", nil, ForbiddenError("patientId does not match the authenticated user")
	}
	if !time.UnixMilli(req.timestampMs).After(s.now()) {
		return "", "", nil, ValidationError("session time must be in the future")
	}

	psychologist, err := s.store.GetUser(ctx, req.psychologistID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", "", nil, NotFoundError("psychologist not found")
		}
		return "", "", nil, UpstreamError("failed to load psychologist", err)
	}
	if !psychologist.IsPsychologist() || psychologist.ProfessionalProfile == nil {
		return "", "", nil, NotFoundError("psychologist not found")
	}

	key := booking.SessionKey(req.psychologistID, req.timestampMs)
	exists, err := s.store.SessionExists(ctx, key)
	if err != nil {
		return "", "", nil, UpstreamError("failed to check session availability", err)
	}
	if exists {
		return "", "", nil, ConflictError("this time slot is already booked")
	}
	return ref, key, psychologist, nil
}

// chargeAmount is the psychologist's stored rate. A differing client value
// is logged and ignored.
func (s *PaymentService) chargeAmount(psychologist *models.User, requested float64) float64 {
	stored := psychologist.ProfessionalProfile.Rate
	if stored <= 0 {
		return requested
	}
	if stored != requested {
		s.log.Warn("paymentService.chargeAmount client rate differs from profile rate",
			zap.String("psychologistId", psychologist.ID),
			zap.Float64("requested", requested),
			zap.Float64("stored", stored),
		)
	}
	return stored
}

// InitiateCardPayment creates a checkout preference for a booking. Like PIX
// charges, the preference carries one idempotency key across retries.
func (s *PaymentService) InitiateCardPayment(ctx context.Context, callerID string, in CardPaymentInput) (*CardPaymentResult, error) {
	ref, key, psychologist, err := s.prepareBooking(ctx, callerID, bookingRequest{
		rate:           in.Rate,
		psychologistID: in.PsychologistID,
		timestampMs:    in.SessionTimestampMillis,
		payerEmail:     in.PayerEmail,
		patientID:      in.PatientID,
	})
	if err != nil {
		return nil, err
	}

	name := psychologist.Name
	if name == "" {
		name = in.PsychologistName
	}

	idempotencyKey := s.newIdempotencyKey()
	pref, err := s.gateway.CreatePreference(ctx, PreferenceRequest{
		Items: []PreferenceItem{{
			ID:         key,
			Title:      fmt.Sprintf("Sessão de Terapia com %s", name),
			Quantity:   1,
			UnitPrice:  s.chargeAmount(psychologist, in.Rate),
			CurrencyID: CurrencyBRL,
		}},
		Payer:             Payer{Email: in.PayerEmail},
		ExternalReference: ref,
		NotificationURL:   s.cfg.NotificationURL(),
	}, idempotencyKey)
	if err != nil {
		s.log.Error("paymentService.InitiateCardPayment error calling gateway.CreatePreference",
			zap.String("reference", ref),
			zap.Error(err),
		)
		return nil, UpstreamError("failed to create payment preference", err)
	}

	s.log.Info("paymentService.InitiateCardPayment preference created",
		zap.String("reference", ref),
		zap.String("preferenceId", pref.ID),
	)
	return &CardPaymentResult{PreferenceID: pref.ID, InitPoint: pref.InitPoint}, nil
}

// InitiatePixPayment creates a PIX charge. The idempotency key is generated
// once per call and reused by every retry of the gateway request.
func (s *PaymentService) InitiatePixPayment(ctx context.Context, callerID string, in PixPaymentInput) (*PixPaymentResult, error) {
	ref, _, psychologist, err := s.prepareBooking(ctx, callerID, bookingRequest{
		rate:           in.Rate,
		psychologistID: in.PsychologistID,
		timestampMs:    in.SessionTimestampMillis,
		payerEmail:     in.PayerEmail,
		patientID:      in.PatientID,
	})
	if err != nil {
		return nil, err
	}

	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Sessão de Terapia com %s", psychologist.Name)
	}

	key := s.newIdempotencyKey()
	payment, err := s.gateway.CreatePixPayment(ctx, PixPaymentRequest{
		TransactionAmount: s.chargeAmount(psychologist, in.Rate),
		Description:       description,
		PaymentMethodID:   PaymentMethodPix,
		Payer:             Payer{Email: in.PayerEmail},
		ExternalReference: ref,
		NotificationURL:   s.cfg.NotificationURL(),
	}, key)
	if err != nil {
		s.log.Error("paymentService.InitiatePixPayment error calling gateway.CreatePixPayment",
			zap.String("reference", ref),
			zap.String("idempotencyKey", key),
			zap.Error(err),
		)
		return nil, UpstreamError("failed to create PIX payment", err)
	}

	s.log.Info("paymentService.InitiatePixPayment charge created",
		zap.String("reference", ref),
		zap.String("paymentId", payment.ID.String()),
	)
	return &PixPaymentResult{
		PaymentID:    payment.ID.String(),
		QRCode:       payment.QRCode,
		QRCodeBase64: payment.QRCodeBase64,
	}, nil
}

// ConfirmPayment fetches the payment from the gateway and, when it is
// approved, creates its session. It is safe to call any number of times,
// concurrently, for the same payment.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID string) (*ConfirmationResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ValidationError("payment id is required")
	}
	if err := s.cfg.MercadoPago.CheckAccessToken(); err != nil {
		s.log.Error("paymentService.ConfirmPayment gateway not configured", zap.Error(err))
		return nil, ConfigError(err)
	}

	if res := s.confirmedFromCache(ctx, paymentID); res != nil {
		return res, nil
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		s.log.Error("paymentService.ConfirmPayment error calling gateway.GetPayment",
			zap.String("paymentId", paymentID),
			zap.Error(err),
		)
		return nil, UpstreamError("failed to fetch payment", err)
	}

	if !payment.IsApproved() || payment.ExternalReference == "" {
		s.log.Info("paymentService.ConfirmPayment payment not approved or without reference",
			zap.String("paymentId", paymentID),
			zap.String("status", payment.Status),
		)
		return &ConfirmationResult{
			Outcome:   models.CallbackOutcomeIgnored,
			PaymentID: paymentID,
			Detail:    fmt.Sprintf("status %q", payment.Status),
		}, nil
	}

	ref, err := booking.ParseReference(payment.ExternalReference)
	if err != nil {
		s.log.Error("paymentService.ConfirmPayment invalid external reference",
			zap.String("paymentId", paymentID),
			zap.String("reference", payment.ExternalReference),
		)
		return nil, &ServiceError{Kind: KindValidation, Message: "Invalid external reference format.", Err: err}
	}
	key := ref.SessionKey()

	exists, err := s.store.SessionExists(ctx, key)
	if err != nil {
		return nil, UpstreamError("failed to check session", err)
	}
	if exists {
		s.log.Info("paymentService.ConfirmPayment session already exists, ignoring duplicate",
			zap.String("paymentId", paymentID),
			zap.String("sessionKey", key),
		)
		s.markConfirmed(ctx, paymentID, key)
		return &ConfirmationResult{Outcome: models.CallbackOutcomeDuplicate, PaymentID: paymentID, SessionKey: key}, nil
	}

	patient, psychologist, err := s.loadParticipants(ctx, ref)
	if err != nil {
		return nil, err
	}

	gatewayID := payment.ID.String()
	if gatewayID == "" {
		gatewayID = paymentID
	}
	session := &models.Session{
		ID:               key,
		ParticipantIDs:   []string{ref.PatientID, ref.PsychologistID},
		PatientID:        ref.PatientID,
		PatientName:      patient.Name,
		PsychologistID:   ref.PsychologistID,
		PsychologistName: psychologist.Name,
		SessionTimestamp: time.UnixMilli(ref.SessionTimestampMillis).UTC(),
		CreatedAt:        s.now().UTC(),
		Status:           models.SessionStatusPaid,
		Rate:             payment.TransactionAmount,
		PaymentDetails: models.PaymentDetails{
			ID:            gatewayID,
			Status:        payment.Status,
			PaymentMethod: payment.Method(),
		},
		Reviewed:                   false,
		EffectiveDurationInSeconds: 0,
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.log.Info("paymentService.ConfirmPayment lost create race, session already exists",
				zap.String("paymentId", paymentID),
				zap.String("sessionKey", key),
			)
			s.markConfirmed(ctx, paymentID, key)
			return &ConfirmationResult{Outcome: models.CallbackOutcomeDuplicate, PaymentID: paymentID, SessionKey: key}, nil
		}
		s.log.Error("paymentService.ConfirmPayment error calling store.CreateSession",
			zap.String("sessionKey", key),
			zap.Error(err),
		)
		return nil, UpstreamError("failed to create session", err)
	}

	s.log.Info("paymentService.ConfirmPayment session created",
		zap.String("paymentId", paymentID),
		zap.String("sessionKey", key),
		zap.Float64("rate", session.Rate),
	)
	s.markConfirmed(ctx, paymentID, key)
	if s.scheduler != nil {
		if err := s.scheduler.ScheduleSessionNotification(ctx, session); err != nil {
			s.log.Warn("paymentService.ConfirmPayment failed to schedule notification",
				zap.String("sessionKey", key),
				zap.Error(err),
			)
		}
	}
	return &ConfirmationResult{
		Outcome:    models.CallbackOutcomeCreated,
		PaymentID:  paymentID,
		SessionKey: key,
		Session:    session,
	}, nil
}

func (s *PaymentService) loadParticipants(ctx context.Context, ref booking.Reference) (*models.User, *models.User, error) {
	var patient, psychologist *models.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.store.GetUser(gctx, ref.PatientID)
		patient = u
		return err
	})
	g.Go(func() error {
		u, err := s.store.GetUser(gctx, ref.PsychologistID)
		psychologist = u
		return err
	})

	if err := g.Wait(); err != nil {
		key := ref.SessionKey()
		if errors.Is(err, ErrNotFound) {
			s.log.Error("paymentService.ConfirmPayment participant not found",
				zap.String("sessionKey", key),
				zap.String("patientId", ref.PatientID),
				zap.String("psychologistId", ref.PsychologistID),
				zap.Error(err),
			)
			return nil, nil, IntegrityError(fmt.Sprintf("patient or psychologist not found for session %s", key), err)
		}
		return nil, nil, UpstreamError("failed to load participants", err)
	}
	return patient, psychologist, nil
}

func (s *PaymentService) confirmedFromCache(ctx context.Context, paymentID string) *ConfirmationResult {
	if s.cache == nil {
		return nil
	}
	key, err := s.cache.ConfirmedSessionKey(ctx, paymentID)
	if err != nil {
		s.log.Warn("paymentService.confirmedFromCache cache read failed", zap.Error(err))
		return nil
	}
	if key == "" {
		return nil
	}
	exists, err := s.store.SessionExists(ctx, key)
	if err != nil || !exists {
		return nil
	}
	return &ConfirmationResult{Outcome: models.CallbackOutcomeDuplicate, PaymentID: paymentID, SessionKey: key}
}

func (s *PaymentService) markConfirmed(ctx context.Context, paymentID, key string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.MarkPaymentConfirmed(ctx, paymentID, key, confirmedPaymentTTL); err != nil {
		s.log.Warn("paymentService.markConfirmed cache write failed", zap.Error(err))
	}
}

// HandleNotification processes one webhook delivery. Notifications of
// other types are acknowledged without work. Every delivery is recorded,
// and retryable failures also schedule a reconciliation run.
func (s *PaymentService) HandleNotification(ctx context.Context, n Notification) (*ConfirmationResult, error) {
	if n.Type != NotificationTypePayment {
		return &ConfirmationResult{Outcome: models.CallbackOutcomeIgnored, Detail: "type " + n.Type}, nil
	}

	if s.cache != nil && n.DataID != "" {
		if count, err := s.cache.CountDelivery(ctx, n.DataID); err == nil && count > 1 {
			s.log.Info("paymentService.HandleNotification repeated delivery",
				zap.String("paymentId", n.DataID),
				zap.Int64("delivery", count),
			)
		}
	}

	res, err := s.ConfirmPayment(ctx, n.DataID)
	s.record(ctx, n, res, err)

	if err != nil {
		switch KindOf(err) {
		case KindIntegrity, KindUpstream:
			if s.scheduler != nil && n.DataID != "" {
				if serr := s.scheduler.SchedulePaymentReconciliation(ctx, n.DataID, reconcileDelay); serr != nil {
					s.log.Warn("paymentService.HandleNotification failed to schedule reconciliation",
						zap.String("paymentId", n.DataID),
						zap.Error(serr),
					)
				}
			}
		}
	}
	return res, err
}

func (s *PaymentService) record(ctx context.Context, n Notification, res *ConfirmationResult, err error) {
	if s.recorder == nil {
		return
	}

	entry := &models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayMercadoPago,
		PaymentID:      n.DataID,
		Topic:          n.Type,
	}
	if len(n.Raw) > 0 && json.Valid(n.Raw) {
		entry.Metadata = append([]byte(nil), n.Raw...)
	}
	switch {
	case err != nil && KindOf(err) == KindValidation:
		entry.Outcome = models.CallbackOutcomeRejected
		entry.Detail = err.Error()
	case err != nil:
		entry.Outcome = models.CallbackOutcomeFailed
		entry.Detail = err.Error()
	default:
		entry.Outcome = res.Outcome
		entry.SessionKey = res.SessionKey
		entry.Detail = res.Detail
	}

	if rerr := s.recorder.RecordCallback(ctx, entry); rerr != nil {
		s.log.Warn("paymentService.record failed to store callback history",
			zap.String("paymentId", n.DataID),
			zap.Error(rerr),
		)
	}
}
