package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"timeplus_app/internal/models"
)

// MemoryStore is a process-local Store used by STORE_DRIVER=memory and in
// tests. A single mutex serializes every operation.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	sessions map[string]models.Session
	payouts  map[string]models.Payout
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		sessions: make(map[string]models.Session),
		payouts:  make(map[string]models.Payout),
	}
}

func notFound(collection, id string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
}

func copyUser(u models.User) *models.User {
	if u.ProfessionalProfile != nil {
		p := *u.ProfessionalProfile
		p.Specialties = append([]string(nil), p.Specialties...)
		u.ProfessionalProfile = &p
	}
	if u.PayoutInfo != nil {
		info := *u.PayoutInfo
		u.PayoutInfo = &info
	}
	if u.Availability != nil {
		av := make(models.WeeklyAvailability, len(u.Availability))
		for k, v := range u.Availability {
			av[k] = v
		}
		u.Availability = av
	}
	return &u
}

func copySession(s models.Session) *models.Session {
	s.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	return &s
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound(CollectionUsers, id)
	}
	return copyUser(u), nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, CollectionUsers, user.ID)
	}
	m.users[user.ID] = *copyUser(*user)
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, id string, mutate func(*models.User) error) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound(CollectionUsers, id)
	}
	working := copyUser(u)
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.ID = id
	m.users[id] = *copyUser(*working)
	return working, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *copyUser(u))
	}
	return users, nil
}

func (m *MemoryStore) ListUsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []models.User
	for _, u := range m.users {
		if u.Role == role {
			users = append(users, *copyUser(u))
		}
	}
	return users, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(CollectionSessions, id)
	}
	return copySession(s), nil
}

func (m *MemoryStore) SessionExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, CollectionSessions, session.ID)
	}
	m.sessions[session.ID] = *copySession(*session)
	return nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(CollectionSessions, id)
	}
	working := copySession(s)
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.ID = id
	m.sessions[id] = *copySession(*working)
	return working, nil
}

func (m *MemoryStore) filterSessions(keep func(models.Session) bool) []models.Session {
	var out []models.Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, *copySession(s))
		}
	}
	sortSessionsNewestFirst(out)
	return out
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterSessions(func(models.Session) bool { return true }), nil
}

func (m *MemoryStore) ListSessionsByParticipant(_ context.Context, uid string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterSessions(func(s models.Session) bool {
		for _, id := range s.ParticipantIDs {
			if id == uid {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryStore) ListSessionsByPsychologist(_ context.Context, psychologistID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterSessions(func(s models.Session) bool { return s.PsychologistID == psychologistID }), nil
}

func (m *MemoryStore) filterPayouts(keep func(models.Payout) bool) []models.Payout {
	var out []models.Payout
	for _, p := range m.payouts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sortPayoutsNewestFirst(out)
	return out
}

func (m *MemoryStore) ListPayouts(_ context.Context) ([]models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterPayouts(func(models.Payout) bool { return true }), nil
}

func (m *MemoryStore) ListPayoutsByPsychologist(_ context.Context, psychologistID string) ([]models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterPayouts(func(p models.Payout) bool { return p.PsychologistID == psychologistID }), nil
}

func (m *MemoryStore) CreatePayout(_ context.Context, psychologistID string, build PayoutBuilder) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[psychologistID]; !ok {
		return nil, notFound(CollectionUsers, psychologistID)
	}

	sessions := m.filterSessions(func(s models.Session) bool { return s.PsychologistID == psychologistID })
	payouts := m.filterPayouts(func(p models.Payout) bool { return p.PsychologistID == psychologistID })

	payout, err := build(sessions, payouts)
	if err != nil {
		return nil, err
	}
	payout.ID = uuid.NewString()
	m.payouts[payout.ID] = *payout
	return payout, nil
}

func (m *MemoryStore) UpdatePayout(_ context.Context, id string, mutate func(*models.Payout) error) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, notFound(CollectionPayouts, id)
	}
	if err := mutate(&p); err != nil {
		return nil, err
	}
	p.ID = id
	m.payouts[id] = p
	out := p
	return &out, nil
}
