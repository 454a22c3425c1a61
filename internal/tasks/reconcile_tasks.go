package tasks

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

type ReconcilePaymentArgs struct {
	PaymentID string `json:"payment_id"`
}

// ReconcilePaymentTaskDef re-runs payment confirmation for a webhook
// delivery that failed. Confirmation is idempotent, so racing with the
// gateway's own redelivery is harmless.
type ReconcilePaymentTaskDef struct {
	deps Dependencies
}

func (t *ReconcilePaymentTaskDef) TaskID() string {
	return "reconcile_payment"
}

func (t *ReconcilePaymentTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args ReconcilePaymentArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, Permanent(err)
	}
	if args.PaymentID == "" {
		return nil, Permanent(errors.New("payment_id not provided"))
	}
	if t.deps.Payments == nil {
		return nil, Permanent(errors.New("payment service is not configured"))
	}

	res, err := t.deps.Payments.ConfirmPayment(ctx, args.PaymentID)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindIntegrity, services.KindUpstream:
			return nil, err
		default:
			return nil, Permanent(err)
		}
	}

	t.deps.Log.Info("task reconcile_payment done",
		zap.String("paymentId", args.PaymentID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("sessionKey", res.SessionKey),
	)
	return map[string]interface{}{
		"payment_id":  args.PaymentID,
		"outcome":     string(res.Outcome),
		"session_key": res.SessionKey,
		"detail":      res.Detail,
	}, nil
}

// ReconcilePaymentTask is the singleton instance of ReconcilePaymentTaskDef
var ReconcilePaymentTask = &ReconcilePaymentTaskDef{}
