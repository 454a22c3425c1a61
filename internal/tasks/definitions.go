package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

type WhatsappSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// PaymentConfirmer re-runs the payment confirmation pipeline.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, paymentID string) (*services.ConfirmationResult, error)
}

// Dependencies are the collaborators task handlers may use. Nil senders
// disable their channel.
type Dependencies struct {
	Store     services.Store
	Scheduler *Scheduler
	Payments  PaymentConfirmer
	Email     EmailSender
	Whatsapp  WhatsappSender
	Location  *time.Location
	Log       *zap.Logger
}

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, deps Dependencies) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	logInfo := &LogInfoTaskDef{log: deps.Log}
	r.Register(logInfo.TaskID(), logInfo.HandleExecution)

	notify := &SendNotificationTaskDef{deps: deps}
	r.Register(notify.TaskID(), notify.HandleExecution)

	reconcile := &ReconcilePaymentTaskDef{deps: deps}
	r.Register(reconcile.TaskID(), reconcile.HandleExecution)
}

func maxAttemptOf(task models.ScheduledTask) int {
	if task.MaxAttempt < 1 {
		return 1
	}
	return task.MaxAttempt
}
