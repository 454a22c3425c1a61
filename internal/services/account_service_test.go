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

const validCPF = "529.982.247-25"

func newAccountFixture(t *testing.T) (*AccountService, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	seedUsers(t, store)
	svc := NewAccountService(store, nil, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func TestValidCPF(t *testing.T) {
	tests := []struct {
		cpf  string
		want bool
	}{
		{cpf: "52998224725", want: true},
		{cpf: validCPF, want: true},
		{cpf: "529.982.247-24", want: false},
		{cpf: "111.111.111-11", want: false},
		{cpf: "1234567890", want: false},
		{cpf: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.cpf, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCPF(tt.cpf))
		})
	}
}

func TestNormalizeWhatsapp(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "(11) 98765-4321", want: "+5511987654321"},
		{input: "+55 11 98765-4321", want: "+5511987654321"},
		{input: "1132654321", want: "+551132654321"},
		{input: "011987654321", want: "+5511987654321"},
		{input: "98765-4321", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeWhatsapp(tt.input)
			if tt.wantErr {
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountService_Signup(t *testing.T) {
	base := SignupInput{
		UID:      "NEW1",
		Email:    "carla@example.com",
		Name:     " Carla ",
		CPF:      validCPF,
		Whatsapp: "(21) 99876-5432",
		Role:     "patient",
	}

	tests := []struct {
		name     string
		mutate   func(*SignupInput)
		wantKind ErrorKind
	}{
		{name: "patient", mutate: func(*SignupInput) {}},
		{name: "uid with separator", mutate: func(in *SignupInput) { in.UID = "abc_def" }, wantKind: KindValidation},
		{name: "invalid cpf", mutate: func(in *SignupInput) { in.CPF = "123.456.789-00" }, wantKind: KindValidation},
		{name: "missing name", mutate: func(in *SignupInput) { in.Name = "  " }, wantKind: KindValidation},
		{name: "unknown role", mutate: func(in *SignupInput) { in.Role = "admin" }, wantKind: KindValidation},
		{name: "psychologist without crp", mutate: func(in *SignupInput) { in.Role = "psychologist" }, wantKind: KindValidation},
		{name: "existing user", mutate: func(in *SignupInput) { in.UID = "U1" }, wantKind: KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newAccountFixture(t)
			in := base
			tt.mutate(&in)

			user, err := svc.Signup(context.Background(), in)
			if tt.wantKind != 0 {
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Carla", user.Name)
			assert.Equal(t, "52998224725", user.CPF)
			assert.Equal(t, "+5521998765432", user.Whatsapp)
			assert.Equal(t, models.RolePatient, user.Role)
			assert.Equal(t, fixedNow, user.CreatedAt)
			assert.Nil(t, user.ProfessionalProfile)
		})
	}
}

func TestAccountService_SignupPsychologistDefaults(t *testing.T) {
	svc, store := newAccountFixture(t)

	_, err := svc.Signup(context.Background(), SignupInput{
		UID:       "NEWP",
		Email:     "dani@example.com",
		Name:      "Dani",
		CPF:       validCPF,
		Whatsapp:  "11987654321",
		Role:      "psychologist",
		CRPNumber: "06/99999",
		CRPState:  "sp",
	})
	require.NoError(t, err)

	stored, err := store.GetUser(context.Background(), "NEWP")
	require.NoError(t, err)
	require.NotNil(t, stored.ProfessionalProfile)
	assert.Equal(t, "06/99999/SP", stored.ProfessionalProfile.CRP)
	assert.Equal(t, []string{"TCC", "Ansiedade"}, stored.ProfessionalProfile.Specialties)
	assert.Equal(t, float64(models.DefaultProfileRate), stored.ProfessionalProfile.Rate)
	assert.Len(t, stored.Availability, 7)
	assert.True(t, stored.Availability["segunda"].Enabled)
	assert.False(t, stored.Availability["domingo"].Enabled)
	assert.NotNil(t, stored.PayoutInfo)
}

func TestAccountService_UpdateSettings(t *testing.T) {
	svc, _ := newAccountFixture(t)
	ctx := context.Background()

	user, err := svc.UpdateSettings(ctx, patientActor, SettingsInput{Name: "Ana Maria", Whatsapp: "11 98765 4321"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", user.Name)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "+5511987654321", user.Whatsapp)

	_, err = svc.UpdateSettings(ctx, patientActor, SettingsInput{Name: ""})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.UpdateSettings(ctx, strangerActor, SettingsInput{Name: "Ghost"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestAccountService_UpdateProfile(t *testing.T) {
	svc, _ := newAccountFixture(t)
	ctx := context.Background()

	in := ProfileInput{
		Title:       "Psicóloga",
		Bio:         "Abordagem humanista.",
		Specialties: []string{"Luto", " ", "Ansiedade"},
		Rate:        180.456,
		PayoutInfo:  &models.PayoutInfo{Bank: "001", Agency: "1234", Account: "9999-0"},
	}
	user, err := svc.UpdateProfile(ctx, psychologistActor, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Luto", "Ansiedade"}, user.ProfessionalProfile.Specialties)
	assert.Equal(t, 180.46, user.ProfessionalProfile.Rate)
	assert.Equal(t, "9999-0", user.PayoutInfo.Account)

	in.Rate = 0
	_, err = svc.UpdateProfile(ctx, psychologistActor, in)
	assert.Equal(t, KindValidation, KindOf(err))

	in.Rate = 100
	_, err = svc.UpdateProfile(ctx, patientActor, in)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestAccountService_UpdateAvailability(t *testing.T) {
	svc, _ := newAccountFixture(t)
	ctx := context.Background()

	availability := models.DefaultAvailability()
	availability["sabado"] = models.DayAvailability{Enabled: true, Start: "08:00", End: "12:00"}
	user, err := svc.UpdateAvailability(ctx, psychologistActor, availability)
	require.NoError(t, err)
	assert.True(t, user.Availability["sabado"].Enabled)

	t.Run("missing day", func(t *testing.T) {
		partial := models.DefaultAvailability()
		delete(partial, "domingo")
		_, err := svc.UpdateAvailability(ctx, psychologistActor, partial)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("start after end", func(t *testing.T) {
		bad := models.DefaultAvailability()
		bad["segunda"] = models.DayAvailability{Enabled: true, Start: "18:00", End: "09:00"}
		_, err := svc.UpdateAvailability(ctx, psychologistActor, bad)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("patients have no availability", func(t *testing.T) {
		_, err := svc.UpdateAvailability(ctx, patientActor, models.DefaultAvailability())
		assert.Equal(t, KindForbidden, KindOf(err))
	})
}
