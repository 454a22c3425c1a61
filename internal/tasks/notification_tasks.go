package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

const notificationRetryDelay = 5 * time.Minute

const (
	patientTemplate = "Olá, $name! Sua sessão com $psychologist está confirmada para $date às $time. " +
		"Valor pago: R$ $amount. Até lá!"
	psychologistTemplate = "Olá, $name! Nova sessão agendada com $patient em $date às $time."
	notificationSubject  = "Sessão confirmada"
)

// NotificationRecipient is a participant to notify. Contact details are read
// from the user document at send time.
type NotificationRecipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	SessionID        string                  `json:"session_id"`
	PatientName      string                  `json:"patient_name"`
	PsychologistName string                  `json:"psychologist_name"`
	SessionTimestamp string                  `json:"session_timestamp"`
	Rate             float64                 `json:"rate"`
	Recipients       []NotificationRecipient `json:"recipients"`
	AttemptCount     int                     `json:"attempt_count"`
}

var errNoChannel = errors.New("no notification channel available")

// SendNotificationTaskDef tells both participants that a session was booked.
type SendNotificationTaskDef struct {
	deps Dependencies
}

func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// HandleExecution sends each recipient a WhatsApp message when they have a
// number, an email otherwise. Recipients that fail are rescheduled until
// the task's max attempt.
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args SendNotificationArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, Permanent(err)
	}
	if t.deps.Store == nil {
		return nil, Permanent(errors.New("user store is not configured"))
	}

	successCount := 0
	skippedCount := 0
	var failures []string
	var failedRecipients []NotificationRecipient

	for _, recipient := range args.Recipients {
		channel, err := t.notify(ctx, recipient, args)
		switch {
		case errors.Is(err, errNoChannel):
			t.deps.Log.Info("task send_notification no channel for recipient",
				zap.String("userId", recipient.UserID),
			)
			skippedCount++
		case err != nil:
			t.deps.Log.Warn("task send_notification failed",
				zap.String("userId", recipient.UserID),
				zap.String("channel", channel),
				zap.Error(err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", recipient.UserID, err))
			failedRecipients = append(failedRecipients, recipient)
		default:
			successCount++
		}
	}

	result := map[string]interface{}{
		"session_id": args.SessionID,
		"total":      len(args.Recipients),
		"success":    successCount,
		"skipped":    skippedCount,
		"failure":    len(failedRecipients),
	}
	if len(failedRecipients) == 0 {
		return result, nil
	}
	result["errors"] = failures

	maxAttempt := maxAttemptOf(task)
	if args.AttemptCount+1 >= maxAttempt || t.deps.Scheduler == nil {
		return result, Permanent(fmt.Errorf("max attempts reached, failed to deliver to %d users", len(failedRecipients)))
	}

	retryArgs := args
	retryArgs.Recipients = failedRecipients
	retryArgs.AttemptCount = args.AttemptCount + 1
	retry, err := BuildScheduledTask(t.TaskID(), retryArgs, t.deps.Scheduler.now().UTC().Add(notificationRetryDelay), nil, models.ScheduledTaskTypeOneTime, task.MaxAttempt)
	if err != nil {
		return result, err
	}
	retry.CorrelationKey = task.CorrelationKey
	if err := t.deps.Scheduler.Enqueue(ctx, retry); err != nil {
		return result, err
	}
	result["rescheduled_task_id"] = retry.ID
	return result, nil
}

// notify returns the channel it used.
func (t *SendNotificationTaskDef) notify(ctx context.Context, recipient NotificationRecipient, args SendNotificationArgs) (string, error) {
	user, err := t.deps.Store.GetUser(ctx, recipient.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	msg := t.render(recipient, user, args)

	if user.Whatsapp != "" && t.deps.Whatsapp != nil {
		return "whatsapp", t.deps.Whatsapp.SendMessage(ctx, user.Whatsapp, msg)
	}
	if user.Email != "" && t.deps.Email != nil {
		err := t.deps.Email.SendEmail([]string{user.Email}, notificationSubject, msg)
		if errors.Is(err, services.ErrSMTPNotConfigured) {
			return "email", errNoChannel
		}
		return "email", err
	}
	return "", errNoChannel
}

func (t *SendNotificationTaskDef) render(recipient NotificationRecipient, user *models.User, args SendNotificationArgs) string {
	template := patientTemplate
	if models.Role(recipient.Role) == models.RolePsychologist {
		template = psychologistTemplate
	}

	name := user.Name
	if name == "" {
		name = recipient.Name
	}

	date, clock := args.SessionTimestamp, ""
	if ts, err := time.Parse(time.RFC3339, args.SessionTimestamp); err == nil {
		local := ts.In(t.deps.Location)
		date = local.Format("02/01/2006")
		clock = local.Format("15:04")
	}

	r := strings.NewReplacer(
		"$name", name,
		"$psychologist", args.PsychologistName,
		"$patient", args.PatientName,
		"$date", date,
		"$time", clock,
		"$amount", strings.Replace(fmt.Sprintf("%.2f", args.Rate), ".", ",", 1),
	)
	return r.Replace(template)
}

// SendNotificationTask is the singleton instance of SendNotificationTaskDef
var SendNotificationTask = &SendNotificationTaskDef{}
