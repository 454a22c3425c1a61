package services

import (
	"context"
	"errors"
	"sort"

	"timeplus_app/internal/models"
)

const (
	CollectionUsers    = "users"
	CollectionSessions = "sessions"
	CollectionPayouts  = "payouts"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// PayoutBuilder decides, from the psychologist's current sessions and
// payouts, which payout to create. It runs inside the store transaction.
type PayoutBuilder func(sessions []models.Session, payouts []models.Payout) (*models.Payout, error)

// Store is the document store behind every service. Mutations that read
// before writing take a callback and run it atomically.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	// CreateUser fails with ErrAlreadyExists when the id is taken.
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, id string, mutate func(*models.User) error) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)

	GetSession(ctx context.Context, id string) (*models.Session, error)
	SessionExists(ctx context.Context, id string) (bool, error)
	// CreateSession writes the session only if no document exists under
	// session.ID, returning ErrAlreadyExists otherwise.
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	ListSessionsByParticipant(ctx context.Context, uid string) ([]models.Session, error)
	ListSessionsByPsychologist(ctx context.Context, psychologistID string) ([]models.Session, error)

	ListPayouts(ctx context.Context) ([]models.Payout, error)
	ListPayoutsByPsychologist(ctx context.Context, psychologistID string) ([]models.Payout, error)
	CreatePayout(ctx context.Context, psychologistID string, build PayoutBuilder) (*models.Payout, error)
	UpdatePayout(ctx context.Context, id string, mutate func(*models.Payout) error) (*models.Payout, error)
}

func sortSessionsNewestFirst(sessions []models.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].SessionTimestamp.After(sessions[j].SessionTimestamp)
	})
}

func sortPayoutsNewestFirst(payouts []models.Payout) {
	sort.SliceStable(payouts, func(i, j int) bool {
		return payouts[i].RequestedAt.After(payouts[j].RequestedAt)
	})
}
