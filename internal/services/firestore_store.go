package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"timeplus_app/internal/models"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func translateFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	return err
}

func (s *FirestoreStore) users() *firestore.CollectionRef {
	return s.client.Collection(CollectionUsers)
}

func (s *FirestoreStore) sessions() *firestore.CollectionRef {
	return s.client.Collection(CollectionSessions)
}

func (s *FirestoreStore) payouts() *firestore.CollectionRef {
	return s.client.Collection(CollectionPayouts)
}

func decodeUser(snap *firestore.DocumentSnapshot) (*models.User, error) {
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func decodeSession(snap *firestore.DocumentSnapshot) (*models.Session, error) {
	var sess models.Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", snap.Ref.ID, err)
	}
	sess.ID = snap.Ref.ID
	return &sess, nil
}

func decodePayout(snap *firestore.DocumentSnapshot) (*models.Payout, error) {
	var p models.Payout
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode payout %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *FirestoreStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	snap, err := s.users().Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return decodeUser(snap)
}

func (s *FirestoreStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.users().Doc(user.ID).Create(ctx, user); err != nil {
		return translateFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) UpdateUser(ctx context.Context, id string, mutate func(*models.User) error) (*models.User, error) {
	ref := s.users().Doc(id)
	var updated *models.User
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return translateFirestoreError(err)
		}
		u, err := decodeUser(snap)
		if err != nil {
			return err
		}
		if err := mutate(u); err != nil {
			return err
		}
		updated = u
		return tx.Set(ref, u)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FirestoreStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.queryUsers(ctx, s.users().Query)
}

func (s *FirestoreStore) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return s.queryUsers(ctx, s.users().Where("role", "==", string(role)))
}

func (s *FirestoreStore) queryUsers(ctx context.Context, q firestore.Query) ([]models.User, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	users := make([]models.User, 0, len(snaps))
	for _, snap := range snaps {
		u, err := decodeUser(snap)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (s *FirestoreStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	snap, err := s.sessions().Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return decodeSession(snap)
}

func (s *FirestoreStore) SessionExists(ctx context.Context, id string) (bool, error) {
	snap, err := s.sessions().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return snap.Exists(), nil
}

// CreateSession relies on Firestore's create semantics: the write is
// rejected with AlreadyExists when the document is present.
func (s *FirestoreStore) CreateSession(ctx context.Context, session *models.Session) error {
	if _, err := s.sessions().Doc(session.ID).Create(ctx, session); err != nil {
		return translateFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) UpdateSession(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	ref := s.sessions().Doc(id)
	var updated *models.Session
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return translateFirestoreError(err)
		}
		sess, err := decodeSession(snap)
		if err != nil {
			return err
		}
		if err := mutate(sess); err != nil {
			return err
		}
		updated = sess
		return tx.Set(ref, sess)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FirestoreStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	return s.querySessions(ctx, s.sessions().Query)
}

func (s *FirestoreStore) ListSessionsByParticipant(ctx context.Context, uid string) ([]models.Session, error) {
	return s.querySessions(ctx, s.sessions().Where("participantIds", "array-contains", uid))
}

func (s *FirestoreStore) ListSessionsByPsychologist(ctx context.Context, psychologistID string) ([]models.Session, error) {
	return s.querySessions(ctx, s.sessions().Where("psychologistId", "==", psychologistID))
}

func (s *FirestoreStore) querySessions(ctx context.Context, q firestore.Query) ([]models.Session, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return decodeSessions(snaps)
}

func decodeSessions(snaps []*firestore.DocumentSnapshot) ([]models.Session, error) {
	sessions := make([]models.Session, 0, len(snaps))
	for _, snap := range snaps {
		sess, err := decodeSession(snap)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	sortSessionsNewestFirst(sessions)
	return sessions, nil
}

func (s *FirestoreStore) ListPayouts(ctx context.Context) ([]models.Payout, error) {
	return s.queryPayouts(ctx, s.payouts().Query)
}

func (s *FirestoreStore) ListPayoutsByPsychologist(ctx context.Context, psychologistID string) ([]models.Payout, error) {
	return s.queryPayouts(ctx, s.payouts().Where("psychologistId", "==", psychologistID))
}

func (s *FirestoreStore) queryPayouts(ctx context.Context, q firestore.Query) ([]models.Payout, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return decodePayouts(snaps)
}

func decodePayouts(snaps []*firestore.DocumentSnapshot) ([]models.Payout, error) {
	payouts := make([]models.Payout, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decodePayout(snap)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	sortPayoutsNewestFirst(payouts)
	return payouts, nil
}

// CreatePayout reads the psychologist's sessions and payouts and writes the
// new payout in one transaction. The psychologist's user document is
// touched as well so two concurrent requests conflict and one is retried
// against the updated balance.
func (s *FirestoreStore) CreatePayout(ctx context.Context, psychologistID string, build PayoutBuilder) (*models.Payout, error) {
	userRef := s.users().Doc(psychologistID)
	var created *models.Payout
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(userRef); err != nil {
			return translateFirestoreError(err)
		}

		sessionSnaps, err := tx.Documents(s.sessions().Where("psychologistId", "==", psychologistID)).GetAll()
		if err != nil {
			return translateFirestoreError(err)
		}
		sessions, err := decodeSessions(sessionSnaps)
		if err != nil {
			return err
		}

		payoutSnaps, err := tx.Documents(s.payouts().Where("psychologistId", "==", psychologistID)).GetAll()
		if err != nil {
			return translateFirestoreError(err)
		}
		payouts, err := decodePayouts(payoutSnaps)
		if err != nil {
			return err
		}

		payout, err := build(sessions, payouts)
		if err != nil {
			return err
		}

		ref := s.payouts().NewDoc()
		if err := tx.Create(ref, payout); err != nil {
			return err
		}
		if err := tx.Update(userRef, []firestore.Update{{Path: "lastPayoutRequestAt", Value: time.Now()}}); err != nil {
			return err
		}
		payout.ID = ref.ID
		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *FirestoreStore) UpdatePayout(ctx context.Context, id string, mutate func(*models.Payout) error) (*models.Payout, error) {
	ref := s.payouts().Doc(id)
	var updated *models.Payout
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return translateFirestoreError(err)
		}
		p, err := decodePayout(snap)
		if err != nil {
			return err
		}
		if err := mutate(p); err != nil {
			return err
		}
		updated = p
		return tx.Set(ref, p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
