package services

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timeplus_app/internal/booking"
	"timeplus_app/internal/models"
)

const recentSessionsLimit = 5

// FinanceOverview is what a psychologist sees on the finance page.
type FinanceOverview struct {
	AvailableBalance float64              `json:"availableBalance"`
	TotalEarned      float64              `json:"totalEarned"`
	PendingEarnings  float64              `json:"pendingEarnings"`
	CompletedCount   int                  `json:"completedSessions"`
	Payouts          []models.Payout      `json:"payouts"`
	Transactions     []SessionTransaction `json:"transactions"`
	PayoutInfo       *models.PayoutInfo   `json:"payoutInfo,omitempty"`
}

// SessionTransaction is a session seen through the commission split.
type SessionTransaction struct {
	SessionID         string               `json:"sessionId"`
	PatientName       string               `json:"patientName"`
	PsychologistID    string               `json:"psychologistId"`
	PsychologistName  string               `json:"psychologistName"`
	SessionTimestamp  time.Time            `json:"sessionTimestamp"`
	Status            models.SessionStatus `json:"status"`
	Rate              float64              `json:"rate"`
	PsychologistShare float64              `json:"psychologistShare"`
	PlatformShare     float64              `json:"platformShare"`
	PaymentMethod     string               `json:"paymentMethod,omitempty"`
}

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	TotalRevenue   float64          `json:"totalRevenue"`
	PlatformProfit float64          `json:"platformProfit"`
	ActiveUsers    int              `json:"activeUsers"`
	Patients       int              `json:"patients"`
	Psychologists  int              `json:"psychologists"`
	SessionCount   int              `json:"sessionCount"`
	PendingPayouts int              `json:"pendingPayouts"`
	RecentSessions []models.Session `json:"recentSessions"`
}

// UserDetails is the admin view of one account. Revenue, PlatformFee, Net
// and Balance are filled for psychologists, TotalSpent for patients.
type UserDetails struct {
	User        *models.User     `json:"user"`
	Sessions    []models.Session `json:"sessions"`
	Payouts     []models.Payout  `json:"payouts,omitempty"`
	Revenue     float64          `json:"revenue,omitempty"`
	PlatformFee float64          `json:"platformFee,omitempty"`
	Net         float64          `json:"net,omitempty"`
	Balance     *float64         `json:"balance,omitempty"`
	TotalSpent  float64          `json:"totalSpent,omitempty"`
}

type FinanceService struct {
	store      Store
	commission booking.Commission
	log        *zap.Logger
	now        func() time.Time
}

func NewFinanceService(store Store, commission booking.Commission, log *zap.Logger) *FinanceService {
	return &FinanceService{
		store:      store,
		commission: commission,
		log:        log,
		now:        time.Now,
	}
}

// Balance is the psychologist share of every completed session minus the
// payouts that are processing or paid, never below zero.
func (s *FinanceService) Balance(sessions []models.Session, payouts []models.Payout) float64 {
	earned := 0.0
	for _, sess := range sessions {
		if sess.Status == models.SessionStatusCompleted {
			earned += s.commission.PsychologistShare(sess.Rate)
		}
	}
	withheld := 0.0
	for _, p := range payouts {
		if p.Status.CountsAgainstBalance() {
			withheld += p.Amount
		}
	}
	balance := math.Round((earned-withheld)*100) / 100
	if balance < 0 {
		return 0
	}
	return balance
}

func (s *FinanceService) transaction(sess models.Session) SessionTransaction {
	mine, platform := s.commission.Split(sess.Rate)
	return SessionTransaction{
		SessionID:         sess.ID,
		PatientName:       sess.PatientName,
		PsychologistID:    sess.PsychologistID,
		PsychologistName:  sess.PsychologistName,
		SessionTimestamp:  sess.SessionTimestamp,
		Status:            sess.Status,
		Rate:              sess.Rate,
		PsychologistShare: mine,
		PlatformShare:     platform,
		PaymentMethod:     sess.PaymentDetails.PaymentMethod,
	}
}

func (s *FinanceService) loadLedger(ctx context.Context, psychologistID string) ([]models.Session, []models.Payout, error) {
	var (
		sessions []models.Session
		payouts  []models.Payout
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.ListSessionsByPsychologist(gctx, psychologistID)
		sessions = list
		return err
	})
	g.Go(func() error {
		list, err := s.store.ListPayoutsByPsychologist(gctx, psychologistID)
		payouts = list
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, UpstreamError("failed to load finance data", err)
	}
	return sessions, payouts, nil
}

// Overview returns the balance, earnings and payout history of a psychologist.
func (s *FinanceService) Overview(ctx context.Context, actor Actor) (*FinanceOverview, error) {
	user, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, UpstreamError("failed to load user", err)
	}
	if !user.IsPsychologist() {
		return nil, ForbiddenError("only psychologists have a finance overview")
	}

	sessions, payouts, err := s.loadLedger(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	overview := &FinanceOverview{
		AvailableBalance: s.Balance(sessions, payouts),
		Payouts:          payouts,
		Transactions:     make([]SessionTransaction, 0, len(sessions)),
		PayoutInfo:       user.PayoutInfo,
	}
	if overview.Payouts == nil {
		overview.Payouts = []models.Payout{}
	}
	for _, sess := range sessions {
		if !sess.Status.CountsAsRevenue() {
			continue
		}
		tx := s.transaction(sess)
		overview.Transactions = append(overview.Transactions, tx)
		if sess.Status == models.SessionStatusCompleted {
			overview.TotalEarned += tx.PsychologistShare
			overview.CompletedCount++
		} else {
			overview.PendingEarnings += tx.PsychologistShare
		}
	}
	overview.TotalEarned = math.Round(overview.TotalEarned*100) / 100
	overview.PendingEarnings = math.Round(overview.PendingEarnings*100) / 100
	return overview, nil
}

// RequestPayout withdraws the whole available balance. The balance is
// recomputed inside the store transaction so two concurrent requests cannot
// both withdraw it.
func (s *FinanceService) RequestPayout(ctx context.Context, actor Actor) (*models.Payout, error) {
	user, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, UpstreamError("failed to load user", err)
	}
	if !user.IsPsychologist() {
		return nil, ForbiddenError("only psychologists can request payouts")
	}
	if user.PayoutInfo == nil || user.PayoutInfo.Account == "" {
		return nil, ValidationError("payout details are missing")
	}

	now := s.now()
	payout, err := s.store.CreatePayout(ctx, actor.ID, func(sessions []models.Session, payouts []models.Payout) (*models.Payout, error) {
		amount := s.Balance(sessions, payouts)
		if amount <= 0 {
			return nil, ValidationError("no balance available for payout")
		}
		return &models.Payout{
			PsychologistID:   actor.ID,
			PsychologistName: user.Name,
			Amount:           amount,
			Status:           models.PayoutStatusProcessing,
			RequestedAt:      now,
			UpdatedAt:        now,
		}, nil
	})
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, UpstreamError("failed to create payout", err)
	}

	s.log.Info("financeService.RequestPayout payout requested",
		zap.String("payoutId", payout.ID),
		zap.String("psychologistId", actor.ID),
		zap.Float64("amount", payout.Amount),
	)
	return payout, nil
}

// ListPayouts returns every payout, newest first.
func (s *FinanceService) ListPayouts(ctx context.Context) ([]models.Payout, error) {
	payouts, err := s.store.ListPayouts(ctx)
	if err != nil {
		return nil, UpstreamError("failed to list payouts", err)
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return payouts, nil
}

// UpdatePayoutStatus settles a processing payout as paid or rejected.
func (s *FinanceService) UpdatePayoutStatus(ctx context.Context, id string, status models.PayoutStatus) (*models.Payout, error) {
	if !status.IsTerminal() {
		return nil, ValidationError("status must be %s or %s", models.PayoutStatusPaid, models.PayoutStatusRejected)
	}

	payout, err := s.store.UpdatePayout(ctx, id, func(p *models.Payout) error {
		if p.Status != models.PayoutStatusProcessing {
			return ConflictError("payout was already settled")
		}
		p.Status = status
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("payout not found")
		}
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, UpstreamError("failed to update payout", err)
	}

	s.log.Info("financeService.UpdatePayoutStatus payout settled",
		zap.String("payoutId", id),
		zap.String("status", string(status)),
	)
	return payout, nil
}

// Stats summarizes revenue and activity for the admin dashboard.
func (s *FinanceService) Stats(ctx context.Context) (*PlatformStats, error) {
	var (
		users    []models.User
		sessions []models.Session
		payouts  []models.Payout
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.ListUsers(gctx)
		users = list
		return err
	})
	g.Go(func() error {
		list, err := s.store.ListSessions(gctx)
		sessions = list
		return err
	})
	g.Go(func() error {
		list, err := s.store.ListPayouts(gctx)
		payouts = list
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, UpstreamError("failed to load platform data", err)
	}

	stats := &PlatformStats{RecentSessions: []models.Session{}}
	for _, u := range users {
		switch u.Role {
		case models.RolePatient:
			stats.Patients++
		case models.RolePsychologist:
			stats.Psychologists++
		}
	}
	stats.ActiveUsers = stats.Patients + stats.Psychologists

	for _, sess := range sessions {
		if !sess.Status.CountsAsRevenue() {
			continue
		}
		stats.SessionCount++
		stats.TotalRevenue += sess.Rate
		stats.PlatformProfit += s.commission.PlatformShare(sess.Rate)
	}
	stats.TotalRevenue = math.Round(stats.TotalRevenue*100) / 100
	stats.PlatformProfit = math.Round(stats.PlatformProfit*100) / 100

	for _, p := range payouts {
		if p.Status == models.PayoutStatusProcessing {
			stats.PendingPayouts++
		}
	}

	// sessions are newest first
	if len(sessions) > recentSessionsLimit {
		stats.RecentSessions = sessions[:recentSessionsLimit]
	} else if len(sessions) > 0 {
		stats.RecentSessions = sessions
	}
	return stats, nil
}

// Transactions lists every session with its commission split.
func (s *FinanceService) Transactions(ctx context.Context) ([]SessionTransaction, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, UpstreamError("failed to list sessions", err)
	}
	list := make([]SessionTransaction, 0, len(sessions))
	for _, sess := range sessions {
		list = append(list, s.transaction(sess))
	}
	return list, nil
}

// ListUsers returns every account for the admin user table.
func (s *FinanceService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, UpstreamError("failed to list users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UserDetails returns one account with its sessions and, for
// psychologists, payouts and balance.
func (s *FinanceService) UserDetails(ctx context.Context, id string) (*UserDetails, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, UpstreamError("failed to load user", err)
	}

	details := &UserDetails{User: user}
	if user.IsPsychologist() {
		sessions, payouts, err := s.loadLedger(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if !sess.Status.CountsAsRevenue() {
				continue
			}
			mine, platform := s.commission.Split(sess.Rate)
			details.Revenue += sess.Rate
			details.PlatformFee += platform
			details.Net += mine
		}
		details.Revenue = math.Round(details.Revenue*100) / 100
		details.PlatformFee = math.Round(details.PlatformFee*100) / 100
		details.Net = math.Round(details.Net*100) / 100
		balance := s.Balance(sessions, payouts)
		details.Sessions = sessions
		details.Payouts = payouts
		details.Balance = &balance
	} else {
		sessions, err := s.store.ListSessionsByParticipant(ctx, id)
		if err != nil {
			return nil, UpstreamError("failed to list sessions", err)
		}
		for _, sess := range sessions {
			if sess.PatientID == id && sess.Status.CountsAsRevenue() {
				details.TotalSpent += sess.Rate
			}
		}
		details.TotalSpent = math.Round(details.TotalSpent*100) / 100
		details.Sessions = sessions
	}
	if details.Sessions == nil {
		details.Sessions = []models.Session{}
	}
	return details, nil
}
