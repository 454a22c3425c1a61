package models

import "time"

// SessionStatus is the lifecycle state of a booked session.
type SessionStatus string

const (
	SessionStatusPaid      SessionStatus = "Pago"
	SessionStatusScheduled SessionStatus = "Agendada"
	SessionStatusCompleted SessionStatus = "Concluída"
	SessionStatusCancelled SessionStatus = "Cancelada"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPaid:      {SessionStatusScheduled, SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusScheduled: {SessionStatusCompleted, SessionStatusCancelled},
}

// CanTransitionTo reports whether a session in s may move to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is allowed.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// CountsAsRevenue reports whether sessions in s contribute to platform revenue.
func (s SessionStatus) CountsAsRevenue() bool {
	switch s {
	case SessionStatusPaid, SessionStatusScheduled, SessionStatusCompleted:
		return true
	}
	return false
}

// PaymentDetails records the gateway payment that produced the session.
type PaymentDetails struct {
	ID            string `firestore:"id" json:"id"`
	Status        string `firestore:"status" json:"status"`
	PaymentMethod string `firestore:"paymentMethod" json:"paymentMethod"`
}

// Session is a document in the sessions collection. Its id is
// booking.SessionKey(PsychologistID, SessionTimestamp).
type Session struct {
	ID               string         `firestore:"-" json:"id"`
	ParticipantIDs   []string       `firestore:"participantIds" json:"participantIds"`
	PatientID        string         `firestore:"patientId" json:"patientId"`
	PatientName      string         `firestore:"patientName" json:"patientName"`
	PsychologistID   string         `firestore:"psychologistId" json:"psychologistId"`
	PsychologistName string         `firestore:"psychologistName" json:"psychologistName"`
	SessionTimestamp time.Time      `firestore:"sessionTimestamp" json:"sessionTimestamp"`
	CreatedAt        time.Time      `firestore:"createdAt" json:"createdAt"`
	Status           SessionStatus  `firestore:"status" json:"status"`
	Rate             float64        `firestore:"rate" json:"rate"`
	PaymentDetails   PaymentDetails `firestore:"paymentDetails" json:"paymentDetails"`

	Reviewed      bool   `firestore:"reviewed" json:"reviewed"`
	Rating        int    `firestore:"rating,omitempty" json:"rating,omitempty"`
	ReviewComment string `firestore:"reviewComment,omitempty" json:"reviewComment,omitempty"`

	PsychologistNote           string `firestore:"psychologistNote,omitempty" json:"psychologistNote,omitempty"`
	EffectiveDurationInSeconds int64  `firestore:"effectiveDurationInSeconds" json:"effectiveDurationInSeconds"`
}

// HasParticipant reports whether uid is the patient or the psychologist.
func (s *Session) HasParticipant(uid string) bool {
	return uid != "" && (uid == s.PatientID || uid == s.PsychologistID)
}

// TimestampMillis is the booked instant as epoch milliseconds.
func (s *Session) TimestampMillis() int64 {
	return s.SessionTimestamp.UnixMilli()
}
