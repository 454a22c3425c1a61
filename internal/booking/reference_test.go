package booking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReference(t *testing.T) {
	ref, err := BuildReference("P1", 1700000000000, "U1")
	require.NoError(t, err)
	assert.Equal(t, "sid_P1_1700000000000_uid_U1", ref)
}

func TestBuildReference_RejectsAmbiguousInput(t *testing.T) {
	tests := []struct {
		name    string
		pid     string
		ts      int64
		uid     string
		wantErr error
	}{
		{name: "psychologist id with separator", pid: "P_1", ts: 1, uid: "U1", wantErr: ErrInvalidIdentifier},
		{name: "patient id with separator", pid: "P1", ts: 1, uid: "U_1", wantErr: ErrInvalidIdentifier},
		{name: "empty psychologist id", pid: "", ts: 1, uid: "U1", wantErr: ErrInvalidIdentifier},
		{name: "blank patient id", pid: "P1", ts: 1, uid: "  ", wantErr: ErrInvalidIdentifier},
		{name: "zero timestamp", pid: "P1", ts: 0, uid: "U1", wantErr: ErrInvalidTimestamp},
		{name: "negative timestamp", pid: "P1", ts: -5, uid: "U1", wantErr: ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildReference(tt.pid, tt.ts, tt.uid)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParseReference_RoundTrip(t *testing.T) {
	inputs := []Reference{
		{PsychologistID: "P1", SessionTimestampMillis: 1700000000000, PatientID: "U1"},
		{PsychologistID: "aBcD9xYz0Q", SessionTimestampMillis: 1, PatientID: "kLmN-123"},
		{PsychologistID: "psy.with.dots", SessionTimestampMillis: 1735732800000, PatientID: "pat:colon"},
	}

	for _, in := range inputs {
		t.Run(in.String(), func(t *testing.T) {
			raw, err := BuildReference(in.PsychologistID, in.SessionTimestampMillis, in.PatientID)
			require.NoError(t, err)

			got, err := ParseReference(raw)
			require.NoError(t, err)
			assert.Equal(t, in, got)
		})
	}
}

func TestParseReference_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "missing uid tag", raw: "sid_P1_1700000000000_U1"},
		{name: "four parts", raw: "sid_P1_1700000000000_uid"},
		{name: "wrong leading tag", raw: "xid_P1_1700000000000_uid_U1"},
		{name: "wrong patient tag", raw: "sid_P1_1700000000000_pid_U1"},
		{name: "separator inside id", raw: "sid_P_1_1700000000000_uid_U1"},
		{name: "non numeric timestamp", raw: "sid_P1_tomorrow_uid_U1"},
		{name: "empty patient", raw: "sid_P1_1700000000000_uid_"},
		{name: "zero timestamp", raw: "sid_P1_0_uid_U1"},
		{name: "signed timestamp", raw: "sid_P1_+1700000000000_uid_U1"},
		{name: "zero padded timestamp", raw: "sid_P1_01700000000000_uid_U1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReference(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedReference)
		})
	}
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "session-P1-1700000000000", SessionKey("P1", 1700000000000))

	ref := Reference{PsychologistID: "P1", SessionTimestampMillis: 1700000000000, PatientID: "U1"}
	assert.Equal(t, "session-P1-1700000000000", ref.SessionKey())
}
