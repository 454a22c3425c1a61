package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeplus_app/internal/models"
)

func newCatalogFixture(t *testing.T, cache *RedisCache) (*CatalogService, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	seedUsers(t, store)
	svc := NewCatalogService(store, cache, time.Minute, time.UTC, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func TestCatalogService_ListPsychologists(t *testing.T) {
	svc, store := newCatalogFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{
		ID:                  "P2",
		Name:                "Dra. Clara",
		Role:                models.RolePsychologist,
		ProfessionalProfile: &models.ProfessionalProfile{Title: "Psicóloga"},
	}))

	list, err := svc.ListPsychologists(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "incomplete profiles are skipped")
	assert.Equal(t, "P1", list[0].ID)
	assert.Equal(t, 150.0, list[0].Rate)
	assert.Equal(t, []string{"TCC", "Ansiedade"}, list[0].Specialties)
}

func TestCatalogService_ListPsychologistsIsCached(t *testing.T) {
	cache, _ := setupTestRedis(t)
	svc, store := newCatalogFixture(t, cache)
	ctx := context.Background()

	list, err := svc.ListPsychologists(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.CreateUser(ctx, &models.User{
		ID:                  "P2",
		Name:                "Dra. Clara",
		Role:                models.RolePsychologist,
		ProfessionalProfile: models.DefaultProfessionalProfile("06/2222", "RJ"),
	}))

	list, err = svc.ListPsychologists(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "served from cache")

	require.NoError(t, cache.InvalidateCatalog(ctx))
	list, err = svc.ListPsychologists(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCatalogService_GetPsychologistDetails(t *testing.T) {
	svc, store := newCatalogFixture(t, nil)
	ctx := context.Background()

	reviewed := seedSession(t, store, -48*time.Hour, models.SessionStatusCompleted, 150)
	_, err := store.UpdateSession(ctx, reviewed, func(s *models.Session) error {
		s.Reviewed = true
		s.Rating = 4
		s.ReviewComment = "Muito boa"
		return nil
	})
	require.NoError(t, err)
	other := seedSession(t, store, -24*time.Hour, models.SessionStatusCompleted, 150)
	_, err = store.UpdateSession(ctx, other, func(s *models.Session) error {
		s.Reviewed = true
		s.Rating = 5
		return nil
	})
	require.NoError(t, err)
	booked := seedSession(t, store, 22*time.Hour, models.SessionStatusPaid, 150)
	seedSession(t, store, 23*time.Hour, models.SessionStatusCancelled, 150)

	details, err := svc.GetPsychologistDetails(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Bruno", details.Name)
	assert.Equal(t, 2, details.ReviewCount)
	assert.Equal(t, 4.5, details.Rating)
	assert.Len(t, details.BookedSlots, 4, "cancelled sessions keep their slot")

	stored, err := store.GetSession(ctx, booked)
	require.NoError(t, err)
	assert.Contains(t, details.BookedSlots, stored.TimestampMillis())

	_, err = svc.GetPsychologistDetails(ctx, "U1")
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = svc.GetPsychologistDetails(ctx, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCatalogService_AvailableSlots(t *testing.T) {
	svc, store := newCatalogFixture(t, nil)
	// 2023-11-02 10:00 UTC, a Thursday
	seedSession(t, store, 22*time.Hour, models.SessionStatusPaid, 150)
	// 2023-11-03 10:00 UTC, a Friday
	seedSession(t, store, 46*time.Hour, models.SessionStatusCancelled, 150)

	tests := []struct {
		name     string
		date     string
		want     []string
		wantKind ErrorKind
	}{
		{
			name: "booked slot excluded",
			date: "2023-11-02",
			want: []string{"09:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"},
		},
		{
			name: "today only lists future slots",
			date: "2023-11-01",
			want: []string{"13:00", "14:00", "15:00", "16:00", "17:00"},
		},
		{
			name: "friday ends early and cancelled slot stays taken",
			date: "2023-11-03",
			want: []string{"09:00", "11:00", "12:00", "13:00"},
		},
		{name: "disabled day", date: "2023-11-05", want: []string{}},
		{name: "bad date", date: "02/11/2023", wantKind: KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := svc.AvailableSlots(context.Background(), "P1", tt.date)
			if tt.wantKind != 0 {
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, slots)
		})
	}
}
