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

// PsychologistSummary is one entry of the public listing.
type PsychologistSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	Title       string   `json:"title"`
	Specialties []string `json:"specialties"`
	Rate        float64  `json:"rate"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"reviews"`
}

type Review struct {
	SessionID        string    `json:"sessionId"`
	PatientName      string    `json:"patientName"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment,omitempty"`
	SessionTimestamp time.Time `json:"sessionTimestamp"`
}

// PsychologistDetails is the booking page of a psychologist. Rating and
// ReviewCount are computed from Reviews.
type PsychologistDetails struct {
	ID                  string                      `json:"id"`
	Name                string                      `json:"name"`
	AvatarURL           string                      `json:"avatarUrl,omitempty"`
	ProfessionalProfile *models.ProfessionalProfile `json:"professionalProfile"`
	Availability        models.WeeklyAvailability   `json:"availability"`
	Reviews             []Review                    `json:"reviews"`
	Rating              float64                     `json:"rating"`
	ReviewCount         int                         `json:"reviewCount"`
	BookedSlots         []int64                     `json:"bookedSlots"`
}

type CatalogService struct {
	store    Store
	cache    *RedisCache
	cacheTTL time.Duration
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func NewCatalogService(store Store, cache *RedisCache, cacheTTL time.Duration, loc *time.Location, log *zap.Logger) *CatalogService {
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// ListPsychologists returns every psychologist with a listable profile.
func (s *CatalogService) ListPsychologists(ctx context.Context) ([]PsychologistSummary, error) {
	if s.cache == nil {
		return s.loadPsychologists(ctx)
	}
	return GetOrSet(s.cache, ctx, catalogCacheKey, s.cacheTTL, func() ([]PsychologistSummary, error) {
		return s.loadPsychologists(ctx)
	})
}

func (s *CatalogService) loadPsychologists(ctx context.Context) ([]PsychologistSummary, error) {
	users, err := s.store.ListUsersByRole(ctx, models.RolePsychologist)
	if err != nil {
		return nil, UpstreamError("failed to list psychologists", err)
	}

	list := make([]PsychologistSummary, 0, len(users))
	for _, u := range users {
		p := u.ProfessionalProfile
		if u.Name == "" || !p.IsComplete() {
			s.log.Warn("catalogService.ListPsychologists skipping incomplete profile", zap.String("userId", u.ID))
			continue
		}
		list = append(list, PsychologistSummary{
			ID:          u.ID,
			Name:        u.Name,
			AvatarURL:   u.AvatarURL,
			Title:       p.Title,
			Specialties: p.Specialties,
			Rate:        p.Rate,
			Rating:      p.Rating,
			ReviewCount: p.ReviewCount,
		})
	}
	return list, nil
}

// GetPsychologistDetails loads the profile, the reviews and the booked
// timestamps of a psychologist.
func (s *CatalogService) GetPsychologistDetails(ctx context.Context, id string) (*PsychologistDetails, error) {
	var (
		user     *models.User
		sessions []models.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.store.GetUser(gctx, id)
		user = u
		return err
	})
	g.Go(func() error {
		list, err := s.store.ListSessionsByPsychologist(gctx, id)
		sessions = list
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("psychologist not found")
		}
		return nil, UpstreamError("failed to load psychologist", err)
	}
	if !user.IsPsychologist() || user.ProfessionalProfile == nil {
		return nil, NotFoundError("psychologist not found")
	}

	details := &PsychologistDetails{
		ID:                  user.ID,
		Name:                user.Name,
		AvatarURL:           user.AvatarURL,
		ProfessionalProfile: user.ProfessionalProfile,
		Availability:        user.Availability,
		Reviews:             []Review{},
		BookedSlots:         []int64{},
	}

	total := 0
	for _, sess := range sessions {
		// Session documents are never deleted, so a cancelled slot stays taken.
		details.BookedSlots = append(details.BookedSlots, sess.TimestampMillis())
		if sess.Reviewed && sess.Rating > 0 {
			details.Reviews = append(details.Reviews, Review{
				SessionID:        sess.ID,
				PatientName:      sess.PatientName,
				Rating:           sess.Rating,
				Comment:          sess.ReviewComment,
				SessionTimestamp: sess.SessionTimestamp,
			})
			total += sess.Rating
		}
	}
	details.ReviewCount = len(details.Reviews)
	if details.ReviewCount > 0 {
		details.Rating = math.Round(float64(total)/float64(details.ReviewCount)*10) / 10
	}
	return details, nil
}

// AvailableSlots returns the free hourly slots of a psychologist on date
// (YYYY-MM-DD, in the application timezone).
func (s *CatalogService) AvailableSlots(ctx context.Context, id, date string) ([]string, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, ValidationError("date must be formatted as YYYY-MM-DD")
	}

	details, err := s.GetPsychologistDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	entry, ok := details.Availability.ForDay(day)
	if !ok {
		return []string{}, nil
	}
	slots, err := booking.Slots(entry.Window(), day, details.BookedSlots, s.now())
	if err != nil {
		s.log.Warn("catalogService.AvailableSlots invalid availability entry",
			zap.String("psychologistId", id),
			zap.String("day", booking.DayKey(day)),
			zap.Error(err),
		)
		return []string{}, nil
	}
	return slots, nil
}
