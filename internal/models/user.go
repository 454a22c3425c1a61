package models

import (
	"time"

	"timeplus_app/internal/booking"
)

// Role discriminates the kind of account.
type Role string

const (
	RolePatient      Role = "Patient"
	RolePsychologist Role = "Psychologist"
	RoleAdmin        Role = "Admin"
)

// User is a document in the users collection, keyed by the Firebase UID.
type User struct {
	ID        string    `firestore:"-" json:"id"`
	Name      string    `firestore:"name" json:"name"`
	Email     string    `firestore:"email" json:"email"`
	CPF       string    `firestore:"cpf,omitempty" json:"cpf,omitempty"`
	Whatsapp  string    `firestore:"whatsapp,omitempty" json:"whatsapp,omitempty"`
	AvatarURL string    `firestore:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Role      Role      `firestore:"role" json:"role"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`

	// Psychologist only.
	ProfessionalProfile *ProfessionalProfile `firestore:"professionalProfile,omitempty" json:"professionalProfile,omitempty"`
	Availability        WeeklyAvailability   `firestore:"availability,omitempty" json:"availability,omitempty"`
	PayoutInfo          *PayoutInfo          `firestore:"payoutInfo,omitempty" json:"payoutInfo,omitempty"`
}

// IsPsychologist reports whether the user carries a professional profile.
func (u *User) IsPsychologist() bool {
	return u.Role == RolePsychologist
}

// ProfessionalProfile is the public listing data of a psychologist. Rating
// and ReviewCount are recomputed from reviewed sessions on read.
type ProfessionalProfile struct {
	Title       string   `firestore:"title" json:"title"`
	CRP         string   `firestore:"crp" json:"crp"`
	Bio         string   `firestore:"bio" json:"bio"`
	Specialties []string `firestore:"specialties" json:"specialties"`
	Rate        float64  `firestore:"rate" json:"rate"`
	Rating      float64  `firestore:"rating,omitempty" json:"rating"`
	ReviewCount int      `firestore:"reviews,omitempty" json:"reviews"`
}

// IsComplete reports whether the profile can be listed.
func (p *ProfessionalProfile) IsComplete() bool {
	return p != nil && len(p.Specialties) > 0 && p.Rate > 0
}

// PayoutInfo is where a psychologist receives payouts.
type PayoutInfo struct {
	Bank    string `firestore:"bank" json:"bank"`
	Agency  string `firestore:"agency" json:"agency"`
	Account string `firestore:"account" json:"account"`
}

// DayAvailability is one day of the weekly template, times as "HH:MM".
type DayAvailability struct {
	Enabled bool   `firestore:"enabled" json:"enabled"`
	Start   string `firestore:"start" json:"start"`
	End     string `firestore:"end" json:"end"`
}

// Window converts the stored entry into the booking rule type.
func (d DayAvailability) Window() booking.DayWindow {
	return booking.DayWindow{Enabled: d.Enabled, Start: d.Start, End: d.End}
}

// WeeklyAvailability is keyed by booking.DayKeys.
type WeeklyAvailability map[string]DayAvailability

// ForDay returns the entry for the weekday of t.
func (w WeeklyAvailability) ForDay(t time.Time) (DayAvailability, bool) {
	d, ok := w[booking.DayKey(t)]
	return d, ok
}

const (
	DefaultProfileTitle = "Psicólogo(a) Clínico(a)"
	DefaultProfileBio   = "Uma breve biografia sobre sua experiência e abordagem terapêutica."
	DefaultProfileRate  = 150
)

// DefaultProfessionalProfile is assigned to a psychologist at signup.
func DefaultProfessionalProfile(crpNumber, crpState string) *ProfessionalProfile {
	return &ProfessionalProfile{
		Title:       DefaultProfileTitle,
		CRP:         crpNumber + "/" + crpState,
		Bio:         DefaultProfileBio,
		Specialties: []string{"TCC", "Ansiedade"},
		Rate:        DefaultProfileRate,
	}
}

// DefaultAvailability is assigned to a psychologist at signup.
func DefaultAvailability() WeeklyAvailability {
	weekday := DayAvailability{Enabled: true, Start: "09:00", End: "18:00"}
	return WeeklyAvailability{
		"segunda": weekday,
		"terca":   weekday,
		"quarta":  weekday,
		"quinta":  weekday,
		"sexta":   {Enabled: true, Start: "09:00", End: "14:00"},
		"sabado":  {Enabled: false, Start: "09:00", End: "12:00"},
		"domingo": {Enabled: false, Start: "09:00", End: "12:00"},
	}
}
