package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{SessionStatusPaid, SessionStatusScheduled, true},
		{SessionStatusPaid, SessionStatusCompleted, true},
		{SessionStatusPaid, SessionStatusCancelled, true},
		{SessionStatusScheduled, SessionStatusCompleted, true},
		{SessionStatusScheduled, SessionStatusPaid, false},
		{SessionStatusCompleted, SessionStatusCancelled, false},
		{SessionStatusCancelled, SessionStatusScheduled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, SessionStatusCompleted.IsTerminal())
	assert.True(t, SessionStatusCancelled.IsTerminal())
	assert.False(t, SessionStatusPaid.IsTerminal())
}

func TestPayoutStatus(t *testing.T) {
	assert.True(t, PayoutStatusProcessing.CountsAgainstBalance())
	assert.True(t, PayoutStatusPaid.CountsAgainstBalance())
	assert.False(t, PayoutStatusRejected.CountsAgainstBalance())

	assert.False(t, PayoutStatusProcessing.IsTerminal())
	assert.True(t, PayoutStatusRejected.IsTerminal())
}

func TestDefaultAvailability(t *testing.T) {
	av := DefaultAvailability()
	assert.Len(t, av, 7)

	// 2030-03-15 is a Friday.
	friday, ok := av.ForDay(time.Date(2030, time.March, 15, 12, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, DayAvailability{Enabled: true, Start: "09:00", End: "14:00"}, friday)

	sunday, ok := av.ForDay(time.Date(2030, time.March, 17, 12, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.False(t, sunday.Enabled)
}

func TestDefaultProfessionalProfile(t *testing.T) {
	p := DefaultProfessionalProfile("06/123456", "SP")
	assert.Equal(t, "06/123456/SP", p.CRP)
	assert.Equal(t, float64(150), p.Rate)
	assert.True(t, p.IsComplete())

	var missing *ProfessionalProfile
	assert.False(t, missing.IsComplete())
}

func TestScheduledTask_NextDueAfter(t *testing.T) {
	due := time.Date(2030, time.January, 1, 9, 0, 0, 0, time.UTC)
	daily := "FREQ=DAILY;INTERVAL=1"

	recurring := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &daily}
	assert.Equal(t, due.AddDate(0, 0, 3), recurring.NextDueAfter(due.AddDate(0, 0, 2)))

	oneTime := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeOneTime, RecurringInterval: &daily}
	assert.Equal(t, due, oneTime.NextDueAfter(due.AddDate(0, 0, 2)))

	bad := "not a rule"
	broken := ScheduledTask{Due: due, TaskType: ScheduledTaskTypeRecurring, RecurringInterval: &bad}
	assert.Equal(t, due, broken.NextDueAfter(due))
}
