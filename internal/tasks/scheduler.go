package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"timeplus_app/internal/models"
)

const (
	notificationMaxAttempt = 3
	reconcileMaxAttempt    = 3
)

// Scheduler writes scheduled tasks for the worker to pick up.
type Scheduler struct {
	db  *gorm.DB
	now func() time.Time
}

func NewScheduler(db *gorm.DB) *Scheduler {
	return &Scheduler{db: db, now: time.Now}
}

// Enqueue stores task as given.
func (s *Scheduler) Enqueue(ctx context.Context, task *models.ScheduledTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.TaskName, err)
	}
	return nil
}

// enqueueOnce stores task unless an active task with the same name and
// correlation key is already waiting. It reports whether task was stored.
func (s *Scheduler) enqueueOnce(ctx context.Context, task *models.ScheduledTask) (bool, error) {
	var existing models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("task_name = ? AND correlation_key = ? AND status = ?", task.TaskName, task.CorrelationKey, models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up task %s: %w", task.TaskName, err)
	}
	return true, s.Enqueue(ctx, task)
}

// ScheduleSessionNotification enqueues the booking confirmation for both
// participants of session.
func (s *Scheduler) ScheduleSessionNotification(ctx context.Context, session *models.Session) error {
	args := SendNotificationArgs{
		SessionID:        session.ID,
		PatientName:      session.PatientName,
		PsychologistName: session.PsychologistName,
		SessionTimestamp: session.SessionTimestamp.UTC().Format(time.RFC3339),
		Rate:             session.Rate,
		Recipients: []NotificationRecipient{
			{UserID: session.PatientID, Name: session.PatientName, Role: string(models.RolePatient)},
			{UserID: session.PsychologistID, Name: session.PsychologistName, Role: string(models.RolePsychologist)},
		},
	}
	task, err := BuildScheduledTask(SendNotificationTask.TaskID(), args, s.now().UTC(), nil, models.ScheduledTaskTypeOneTime, notificationMaxAttempt)
	if err != nil {
		return err
	}
	task.CorrelationKey = session.ID
	_, err = s.enqueueOnce(ctx, task)
	return err
}

// SchedulePaymentReconciliation enqueues a confirmation retry for
// paymentID after delay.
func (s *Scheduler) SchedulePaymentReconciliation(ctx context.Context, paymentID string, delay time.Duration) error {
	args := ReconcilePaymentArgs{PaymentID: paymentID}
	task, err := BuildScheduledTask(ReconcilePaymentTask.TaskID(), args, s.now().UTC().Add(delay), nil, models.ScheduledTaskTypeOneTime, reconcileMaxAttempt)
	if err != nil {
		return err
	}
	task.CorrelationKey = paymentID
	_, err = s.enqueueOnce(ctx, task)
	return err
}
