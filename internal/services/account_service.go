package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"timeplus_app/internal/booking"
	"timeplus_app/internal/models"
)

// SignupInput is the profile completed after Firebase account creation.
// UID and Email come from the verified ID token.
type SignupInput struct {
	UID       string
	Email     string
	Name      string
	CPF       string
	Whatsapp  string
	Role      string
	CRPNumber string
	CRPState  string
}

type SettingsInput struct {
	Name     string
	Email    string
	Whatsapp string
}

type ProfileInput struct {
	Title       string
	Bio         string
	Specialties []string
	Rate        float64
	AvatarURL   string
	PayoutInfo  *models.PayoutInfo
}

type AccountService struct {
	store Store
	cache *RedisCache
	log   *zap.Logger
	now   func() time.Time
}

func NewAccountService(store Store, cache *RedisCache, log *zap.Logger) *AccountService {
	return &AccountService{store: store, cache: cache, log: log, now: time.Now}
}

// ValidCPF reports whether cpf (formatted or not) has valid check digits.
func ValidCPF(cpf string) bool {
	digits := onlyDigits(cpf)
	if len(digits) != 11 {
		return false
	}
	if strings.Count(digits, digits[:1]) == 11 {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if check != int(digits[n]-'0') {
			return false
		}
	}
	return true
}

// NormalizeWhatsapp returns the number as +55 followed by DDD and number.
func NormalizeWhatsapp(raw string) (string, error) {
	digits := strings.TrimLeft(onlyDigits(raw), "0")
	if strings.HasPrefix(digits, brazilCountryCode) && (len(digits) == 12 || len(digits) == 13) {
		digits = strings.TrimPrefix(digits, brazilCountryCode)
	}
	if len(digits) != 10 && len(digits) != 11 {
		return "", ValidationError("whatsapp must have area code and number")
	}
	return "+" + brazilCountryCode + digits, nil
}

func parseRole(raw string) (models.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "patient", "paciente":
		return models.RolePatient, true
	case "psychologist", "psicologo", "psicólogo":
		return models.RolePsychologist, true
	}
	return "", false
}

// Signup stores the user document for a freshly created Firebase account.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := booking.ValidateID(in.UID); err != nil {
		return nil, ValidationError("account id cannot be used for bookings")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	if !ValidCPF(in.CPF) {
		return nil, ValidationError("invalid CPF")
	}
	whatsapp, err := NormalizeWhatsapp(in.Whatsapp)
	if err != nil {
		return nil, err
	}
	role, ok := parseRole(in.Role)
	if !ok {
		return nil, ValidationError("role must be patient or psychologist")
	}

	user := &models.User{
		ID:        in.UID,
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		CPF:       onlyDigits(in.CPF),
		Whatsapp:  whatsapp,
		Role:      role,
		CreatedAt: s.now(),
	}
	if role == models.RolePsychologist {
		crp := strings.TrimSpace(in.CRPNumber)
		state := strings.ToUpper(strings.TrimSpace(in.CRPState))
		if crp == "" || len(state) != 2 {
			return nil, ValidationError("CRP number and state are required for psychologists")
		}
		user.ProfessionalProfile = models.DefaultProfessionalProfile(crp, state)
		user.Availability = models.DefaultAvailability()
		user.PayoutInfo = &models.PayoutInfo{}
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ConflictError("user already exists")
		}
		return nil, UpstreamError("failed to create user", err)
	}

	s.log.Info("accountService.Signup user created",
		zap.String("userId", user.ID),
		zap.String("role", string(user.Role)),
	)
	if user.IsPsychologist() {
		s.invalidateCatalog(ctx)
	}
	return user, nil
}

func (s *AccountService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, UpstreamError("failed to load user", err)
	}
	return user, nil
}

func (s *AccountService) update(ctx context.Context, actor Actor, mutate func(*models.User) error) (*models.User, error) {
	user, err := s.store.UpdateUser(ctx, actor.ID, mutate)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, UpstreamError("failed to update user", err)
	}
	if user.IsPsychologist() {
		s.invalidateCatalog(ctx)
	}
	return user, nil
}

func (s *AccountService) UpdateSettings(ctx context.Context, actor Actor, in SettingsInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	var whatsapp string
	if strings.TrimSpace(in.Whatsapp) != "" {
		normalized, err := NormalizeWhatsapp(in.Whatsapp)
		if err != nil {
			return nil, err
		}
		whatsapp = normalized
	}

	return s.update(ctx, actor, func(u *models.User) error {
		u.Name = name
		if email := strings.TrimSpace(in.Email); email != "" {
			u.Email = email
		}
		u.Whatsapp = whatsapp
		return nil
	})
}

// UpdateProfile replaces the psychologist's listing data. Rating and review
// count are kept.
func (s *AccountService) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (*models.User, error) {
	if in.Rate <= 0 || math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0) {
		return nil, ValidationError("rate must be greater than zero")
	}
	specialties := make([]string, 0, len(in.Specialties))
	for _, sp := range in.Specialties {
		if sp = strings.TrimSpace(sp); sp != "" {
			specialties = append(specialties, sp)
		}
	}

	return s.update(ctx, actor, func(u *models.User) error {
		if !u.IsPsychologist() {
			return ForbiddenError("only psychologists have a professional profile")
		}
		p := u.ProfessionalProfile
		if p == nil {
			p = &models.ProfessionalProfile{}
			u.ProfessionalProfile = p
		}
		p.Title = strings.TrimSpace(in.Title)
		p.Bio = strings.TrimSpace(in.Bio)
		p.Specialties = specialties
		p.Rate = math.Round(in.Rate*100) / 100
		if in.AvatarURL != "" {
			u.AvatarURL = in.AvatarURL
		}
		if in.PayoutInfo != nil {
			info := *in.PayoutInfo
			u.PayoutInfo = &info
		}
		return nil
	})
}

// UpdateAvailability replaces the weekly template. All seven days must be
// present.
func (s *AccountService) UpdateAvailability(ctx context.Context, actor Actor, availability models.WeeklyAvailability) (*models.User, error) {
	if len(availability) != len(booking.DayKeys) {
		return nil, ValidationError("availability must have exactly %d days", len(booking.DayKeys))
	}
	for _, day := range booking.DayKeys {
		entry, ok := availability[day]
		if !ok {
			return nil, ValidationError("availability is missing %s", day)
		}
		if err := booking.ValidateWindow(entry.Window()); err != nil {
			return nil, ValidationError("invalid availability for %s: %v", day, err)
		}
	}

	return s.update(ctx, actor, func(u *models.User) error {
		if !u.IsPsychologist() {
			return ForbiddenError("only psychologists have availability")
		}
		u.Availability = availability
		return nil
	})
}

func (s *AccountService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.log.Warn("accountService failed to invalidate catalog", zap.Error(err))
	}
}
