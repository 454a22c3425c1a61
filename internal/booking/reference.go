package booking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator joins the fields of an external reference. Identifiers that
// contain it are refused at signup and at payment initiation.
const Separator = "_"

const (
	sessionTag = "sid"
	patientTag = "uid"
)

var (
	ErrMalformedReference = errors.New("malformed booking reference")
	ErrInvalidIdentifier  = errors.New("identifier is empty or contains the reference separator")
	ErrInvalidTimestamp   = errors.New("session timestamp must be a positive epoch millisecond value")
)

// Reference is the logical key of a booking as carried through the payment
// gateway in external_reference.
type Reference struct {
	PsychologistID         string
	SessionTimestampMillis int64
	PatientID              string
}

// ValidateID reports whether id can be embedded in a reference without
// making it ambiguous.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// Validate checks every field of the reference.
func (r Reference) Validate() error {
	if err := ValidateID(r.PsychologistID); err != nil {
		return err
	}
	if err := ValidateID(r.PatientID); err != nil {
		return err
	}
	if r.SessionTimestampMillis <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// String renders sid_{psychologistId}_{sessionTimestampMillis}_uid_{patientId}.
func (r Reference) String() string {
	return strings.Join([]string{
		sessionTag,
		r.PsychologistID,
		strconv.FormatInt(r.SessionTimestampMillis, 10),
		patientTag,
		r.PatientID,
	}, Separator)
}

// SessionKey is the document id of the session this booking produces.
func (r Reference) SessionKey() string {
	return SessionKey(r.PsychologistID, r.SessionTimestampMillis)
}

// BuildReference validates the inputs and returns the encoded reference.
func BuildReference(psychologistID string, sessionTimestampMillis int64, patientID string) (string, error) {
	ref := Reference{
		PsychologistID:         psychologistID,
		SessionTimestampMillis: sessionTimestampMillis,
		PatientID:              patientID,
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return ref.String(), nil
}

// ParseReference decodes a reference built by BuildReference. Anything that
// does not have exactly five parts with the literal tags in place is rejected.
func ParseReference(raw string) (Reference, error) {
	parts := strings.Split(raw, Separator)
	if len(parts) != 5 || parts[0] != sessionTag || parts[3] != patientTag {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, raw)
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || strconv.FormatInt(ts, 10) != parts[2] {
		return Reference{}, fmt.Errorf("%w: timestamp %q", ErrMalformedReference, parts[2])
	}

	ref := Reference{
		PsychologistID:         parts[1],
		SessionTimestampMillis: ts,
		PatientID:              parts[4],
	}
	if err := ref.Validate(); err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrMalformedReference, err)
	}
	return ref, nil
}

// SessionKey returns session-{psychologistId}-{sessionTimestampMillis}.
func SessionKey(psychologistID string, sessionTimestampMillis int64) string {
	return fmt.Sprintf("session-%s-%d", psychologistID, sessionTimestampMillis)
}
