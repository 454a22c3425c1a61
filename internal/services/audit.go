package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"timeplus_app/internal/models"
)

// CallbackRecorder stores one row per webhook delivery.
type CallbackRecorder interface {
	RecordCallback(ctx context.Context, entry *models.PaymentCallbackHistory) error
}

// TaskScheduler enqueues background work for the worker.
type TaskScheduler interface {
	ScheduleSessionNotification(ctx context.Context, session *models.Session) error
	SchedulePaymentReconciliation(ctx context.Context, paymentID string, delay time.Duration) error
}

// GormCallbackRecorder writes callback history to Postgres.
type GormCallbackRecorder struct {
	db *gorm.DB
}

func NewGormCallbackRecorder(db *gorm.DB) *GormCallbackRecorder {
	return &GormCallbackRecorder{db: db}
}

func (r *GormCallbackRecorder) RecordCallback(ctx context.Context, entry *models.PaymentCallbackHistory) error {
	if entry.PaymentGateway == "" {
		entry.PaymentGateway = models.PaymentGatewayMercadoPago
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// CallbackHistory lists the recorded deliveries for paymentID, oldest first.
func (r *GormCallbackRecorder) CallbackHistory(ctx context.Context, paymentID string) ([]models.PaymentCallbackHistory, error) {
	var rows []models.PaymentCallbackHistory
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}
