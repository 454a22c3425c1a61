package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"timeplus_app/internal/models"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db, zap.NewNop()))
	return db
}

func TestGormCallbackRecorder(t *testing.T) {
	ctx := context.Background()
	recorder := NewGormCallbackRecorder(setupAuditDB(t))

	require.NoError(t, recorder.RecordCallback(ctx, &models.PaymentCallbackHistory{
		PaymentID: "1001",
		Topic:     "payment",
		Outcome:   models.CallbackOutcomeCreated,
		Metadata:  []byte(`{"type":"payment"}`),
	}))
	require.NoError(t, recorder.RecordCallback(ctx, &models.PaymentCallbackHistory{
		PaymentID: "1001",
		Topic:     "payment",
		Outcome:   models.CallbackOutcomeDuplicate,
	}))
	require.NoError(t, recorder.RecordCallback(ctx, &models.PaymentCallbackHistory{
		PaymentID: "2002",
		Topic:     "payment",
		Outcome:   models.CallbackOutcomeIgnored,
	}))

	rows, err := recorder.CallbackHistory(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var outcomes []models.CallbackOutcome
	for _, row := range rows {
		assert.Equal(t, models.PaymentGatewayMercadoPago, row.PaymentGateway)
		outcomes = append(outcomes, row.Outcome)
	}
	assert.ElementsMatch(t, []models.CallbackOutcome{models.CallbackOutcomeCreated, models.CallbackOutcomeDuplicate}, outcomes)

	rows, err = recorder.CallbackHistory(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHandleNotification_WritesAuditRows(t *testing.T) {
	db := setupAuditDB(t)
	f := newPaymentFixture(t, testConfig())
	recorder := NewGormCallbackRecorder(db)
	WithCallbackRecorder(recorder)(f.svc)
	f.gateway.payments["PAY1"] = approvedPayment("sid_P1_1700000000000_uid_U1")

	_, err := f.svc.HandleNotification(context.Background(), Notification{Type: NotificationTypePayment, DataID: "PAY1", Raw: []byte(`{"type":"payment","data":{"id":"PAY1"}}`)})
	require.NoError(t, err)
	_, err = f.svc.HandleNotification(context.Background(), Notification{Type: NotificationTypePayment, DataID: "PAY1"})
	require.NoError(t, err)

	rows, err := recorder.CallbackHistory(context.Background(), "PAY1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var keys []string
	var outcomes []models.CallbackOutcome
	for _, row := range rows {
		keys = append(keys, row.SessionKey)
		outcomes = append(outcomes, row.Outcome)
	}
	assert.Equal(t, []string{"session-P1-1700000000000", "session-P1-1700000000000"}, keys)
	assert.ElementsMatch(t, []models.CallbackOutcome{models.CallbackOutcomeCreated, models.CallbackOutcomeDuplicate}, outcomes)
}
