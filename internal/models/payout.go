package models

import "time"

type PayoutStatus string

const (
	PayoutStatusProcessing PayoutStatus = "Processando"
	PayoutStatusPaid       PayoutStatus = "Pago"
	PayoutStatusRejected   PayoutStatus = "Rejeitado"
)

// IsTerminal reports whether the payout can no longer change.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusRejected
}

// CountsAgainstBalance reports whether the payout amount is withheld from
// the psychologist's available balance.
func (s PayoutStatus) CountsAgainstBalance() bool {
	return s == PayoutStatusProcessing || s == PayoutStatusPaid
}

// Payout is a document in the payouts collection.
type Payout struct {
	ID               string       `firestore:"-" json:"id"`
	PsychologistID   string       `firestore:"psychologistId" json:"psychologistId"`
	PsychologistName string       `firestore:"psychologistName" json:"psychologistName"`
	Amount           float64      `firestore:"amount" json:"amount"`
	Status           PayoutStatus `firestore:"status" json:"status"`
	RequestedAt      time.Time    `firestore:"requestedAt" json:"requestedAt"`
	UpdatedAt        time.Time    `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}
