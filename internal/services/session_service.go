package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"timeplus_app/internal/models"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

const maxReviewCommentLength = 2000

// SessionService handles the lifecycle of a booked session after payment.
type SessionService struct {
	store Store
	cache *RedisCache
	log   *zap.Logger
}

func NewSessionService(store Store, cache *RedisCache, log *zap.Logger) *SessionService {
	return &SessionService{store: store, cache: cache, log: log}
}

func (s *SessionService) ListForUser(ctx context.Context, actor Actor) ([]models.Session, error) {
	sessions, err := s.store.ListSessionsByParticipant(ctx, actor.ID)
	if err != nil {
		return nil, UpstreamError("failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// Get returns a session the actor takes part in. Admins can read any.
func (s *SessionService) Get(ctx context.Context, actor Actor, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if !actor.IsAdmin() && !sess.HasParticipant(actor.ID) {
		return nil, ForbiddenError("you are not a participant of this session")
	}
	return sess, nil
}

func (s *SessionService) lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return NotFoundError("session not found")
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return UpstreamError("failed to update session", err)
}

// update loads the session inside a store transaction, checks that the
// actor participates and applies mutate.
func (s *SessionService) update(ctx context.Context, actor Actor, id string, mutate func(*models.Session) error) (*models.Session, error) {
	sess, err := s.store.UpdateSession(ctx, id, func(sess *models.Session) error {
		if !sess.HasParticipant(actor.ID) {
			return ForbiddenError("you are not a participant of this session")
		}
		return mutate(sess)
	})
	if err != nil {
		return nil, s.lookupError(err)
	}
	return sess, nil
}

func transition(sess *models.Session, next models.SessionStatus) error {
	if !sess.Status.CanTransitionTo(next) {
		return ConflictError("session cannot move from " + string(sess.Status) + " to " + string(next))
	}
	sess.Status = next
	return nil
}

// Confirm moves a paid session to scheduled. Psychologist only.
func (s *SessionService) Confirm(ctx context.Context, actor Actor, id string) (*models.Session, error) {
	return s.update(ctx, actor, id, func(sess *models.Session) error {
		if actor.ID != sess.PsychologistID {
			return ForbiddenError("only the psychologist can confirm a session")
		}
		return transition(sess, models.SessionStatusScheduled)
	})
}

// Cancel marks the session as cancelled. Either participant may cancel
// while the session is paid or scheduled.
func (s *SessionService) Cancel(ctx context.Context, actor Actor, id string) (*models.Session, error) {
	sess, err := s.update(ctx, actor, id, func(sess *models.Session) error {
		return transition(sess, models.SessionStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sessionService.Cancel session cancelled",
		zap.String("sessionId", id),
		zap.String("actorId", actor.ID),
	)
	return sess, nil
}

// SaveNotes stores the psychologist's private notes.
func (s *SessionService) SaveNotes(ctx context.Context, actor Actor, id, note string) (*models.Session, error) {
	return s.update(ctx, actor, id, func(sess *models.Session) error {
		if actor.ID != sess.PsychologistID {
			return ForbiddenError("only the psychologist can write session notes")
		}
		sess.PsychologistNote = note
		return nil
	})
}

// RecordRoomExit stores how long the leaving participant stayed in the
// video room. When the psychologist leaves a paid or scheduled session it
// is completed. Failures are logged and reported as not recorded; they are
// never returned to the caller.
func (s *SessionService) RecordRoomExit(ctx context.Context, actor Actor, id string, durationSeconds int64) bool {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	_, err := s.update(ctx, actor, id, func(sess *models.Session) error {
		sess.EffectiveDurationInSeconds = durationSeconds
		if actor.ID == sess.PsychologistID && sess.Status.CanTransitionTo(models.SessionStatusCompleted) {
			sess.Status = models.SessionStatusCompleted
		}
		return nil
	})
	if err != nil {
		s.log.Warn("sessionService.RecordRoomExit failed to record exit",
			zap.String("sessionId", id),
			zap.String("actorId", actor.ID),
			zap.Int64("durationSeconds", durationSeconds),
			zap.Error(err),
		)
		return false
	}
	return true
}

// SubmitReview rates a completed session once. Patient only.
func (s *SessionService) SubmitReview(ctx context.Context, actor Actor, id string, rating int, comment string) (*models.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, ValidationError("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxReviewCommentLength {
		return nil, ValidationError("comment is too long")
	}

	sess, err := s.update(ctx, actor, id, func(sess *models.Session) error {
		if actor.ID != sess.PatientID {
			return ForbiddenError("only the patient can review a session")
		}
		if sess.Status != models.SessionStatusCompleted {
			return ConflictError("only completed sessions can be reviewed")
		}
		if sess.Reviewed {
			return ConflictError("session was already reviewed")
		}
		sess.Reviewed = true
		sess.Rating = rating
		sess.ReviewComment = comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshRating(ctx, sess.PsychologistID)
	return sess, nil
}

// refreshRating stores the current review aggregate on the psychologist's
// profile so the cached listing shows it. Best-effort.
func (s *SessionService) refreshRating(ctx context.Context, psychologistID string) {
	sessions, err := s.store.ListSessionsByPsychologist(ctx, psychologistID)
	if err != nil {
		s.log.Warn("sessionService.refreshRating failed to list sessions", zap.Error(err))
		return
	}
	total, count := 0, 0
	for _, sess := range sessions {
		if sess.Reviewed && sess.Rating > 0 {
			total += sess.Rating
			count++
		}
	}
	_, err = s.store.UpdateUser(ctx, psychologistID, func(u *models.User) error {
		if u.ProfessionalProfile == nil {
			return nil
		}
		u.ProfessionalProfile.ReviewCount = count
		if count > 0 {
			u.ProfessionalProfile.Rating = math.Round(float64(total)/float64(count)*10) / 10
		}
		return nil
	})
	if err != nil {
		s.log.Warn("sessionService.refreshRating failed to update profile", zap.Error(err))
		return
	}
	if s.cache != nil {
		if err := s.cache.InvalidateCatalog(ctx); err != nil {
			s.log.Warn("sessionService.refreshRating failed to invalidate catalog", zap.Error(err))
		}
	}
}
