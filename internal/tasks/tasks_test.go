package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

var fixedNow = time.Date(2023, time.November, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.ScheduledTask{}, &models.ScheduledTaskHistory{}))
	return db
}

func newTestScheduler(db *gorm.DB) *Scheduler {
	s := NewScheduler(db)
	s.now = func() time.Time { return fixedNow }
	return s
}

func newTestRunner(db *gorm.DB, registry *Registry) *Runner {
	r := NewRunner(db, registry, zap.NewNop())
	r.now = func() time.Time { return fixedNow }
	r.retryBackoff = time.Millisecond
	return r
}

func history(t *testing.T, db *gorm.DB, taskID uint) []models.ScheduledTaskHistory {
	t.Helper()
	var rows []models.ScheduledTaskHistory
	require.NoError(t, db.Where("scheduled_task_id = ?", taskID).Order("attempt_number asc").Find(&rows).Error)
	return rows
}

func reload(t *testing.T, db *gorm.DB, id uint) models.ScheduledTask {
	t.Helper()
	var task models.ScheduledTask
	require.NoError(t, db.First(&task, id).Error)
	return task
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	DefineTasks(r, Dependencies{})

	assert.Equal(t, []string{"log_info", "reconcile_payment", "send_notification"}, r.Names())
	_, ok := r.Get("send_notification")
	assert.True(t, ok)
	_, ok = r.Get("process_plan_schedule")
	assert.False(t, ok)
}

func TestBuildScheduledTask(t *testing.T) {
	task, err := BuildScheduledTask("reconcile_payment", ReconcilePaymentArgs{PaymentID: "123"}, fixedNow, nil, models.ScheduledTaskTypeOneTime, 3)
	require.NoError(t, err)
	assert.Equal(t, "123", task.Arguments["payment_id"])
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, 3, task.MaxAttempt)

	var back ReconcilePaymentArgs
	require.NoError(t, decodeArgs(*task, &back))
	assert.Equal(t, "123", back.PaymentID)
}

func testSession() *models.Session {
	return &models.Session{
		ID:               "session-P1-1700000000000",
		PatientID:        "U1",
		PatientName:      "Ana",
		PsychologistID:   "P1",
		PsychologistName: "Dr. Bruno",
		SessionTimestamp: time.UnixMilli(1700000000000).UTC(),
		Rate:             150,
	}
}

func TestScheduler_ScheduleSessionNotification(t *testing.T) {
	db := setupTestDB(t)
	s := newTestScheduler(db)
	ctx := context.Background()

	require.NoError(t, s.ScheduleSessionNotification(ctx, testSession()))
	require.NoError(t, s.ScheduleSessionNotification(ctx, testSession()))

	var tasks []models.ScheduledTask
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1, "active task for the same session is not duplicated")

	task := tasks[0]
	assert.Equal(t, "send_notification", task.TaskName)
	assert.Equal(t, "session-P1-1700000000000", task.CorrelationKey)
	assert.True(t, task.Due.Equal(fixedNow))

	var args SendNotificationArgs
	require.NoError(t, decodeArgs(task, &args))
	require.Len(t, args.Recipients, 2)
	assert.Equal(t, "U1", args.Recipients[0].UserID)
	assert.Equal(t, "P1", args.Recipients[1].UserID)
}

func TestScheduler_SchedulePaymentReconciliation(t *testing.T) {
	db := setupTestDB(t)
	s := newTestScheduler(db)

	require.NoError(t, s.SchedulePaymentReconciliation(context.Background(), "987", 5*time.Minute))

	var task models.ScheduledTask
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, "reconcile_payment", task.TaskName)
	assert.Equal(t, "987", task.CorrelationKey)
	assert.True(t, task.Due.Equal(fixedNow.Add(5*time.Minute)))
}

func TestRunner_Execute(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		handler      TaskHandler
		maxAttempt   int
		wantStatus   models.ScheduledTaskStatus
		wantAttempts int
	}{
		{
			name: "success marks one-time task done",
			handler: func(context.Context, models.ScheduledTask) (map[string]interface{}, error) {
				return map[string]interface{}{"ok": true}, nil
			},
			maxAttempt:   3,
			wantStatus:   models.ScheduledTaskStatusDone,
			wantAttempts: 1,
		},
		{
			name: "failures are retried up to max attempt",
			handler: func(context.Context, models.ScheduledTask) (map[string]interface{}, error) {
				return nil, boom
			},
			maxAttempt:   3,
			wantStatus:   models.ScheduledTaskStatusFailure,
			wantAttempts: 3,
		},
		{
			name: "permanent failures are not retried",
			handler: func(context.Context, models.ScheduledTask) (map[string]interface{}, error) {
				return nil, Permanent(boom)
			},
			maxAttempt:   3,
			wantStatus:   models.ScheduledTaskStatusFailure,
			wantAttempts: 1,
		},
		{
			name: "zero max attempt still runs once",
			handler: func(context.Context, models.ScheduledTask) (map[string]interface{}, error) {
				return nil, boom
			},
			maxAttempt:   0,
			wantStatus:   models.ScheduledTaskStatusFailure,
			wantAttempts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			registry := NewRegistry()
			calls := 0
			registry.Register("job", func(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
				calls++
				assert.Equal(t, tt.maxAttempt, task.Arguments[argMaxAttempt])
				return tt.handler(ctx, task)
			})

			task, err := BuildScheduledTask("job", map[string]string{}, fixedNow, nil, models.ScheduledTaskTypeOneTime, tt.maxAttempt)
			require.NoError(t, err)
			require.NoError(t, db.Create(task).Error)

			newTestRunner(db, registry).Execute(context.Background(), *task)

			assert.Equal(t, tt.wantAttempts, calls)
			stored := reload(t, db, task.ID)
			assert.Equal(t, tt.wantStatus, stored.Status)
			require.NotNil(t, stored.LastRun)
			rows := history(t, db, task.ID)
			assert.Len(t, rows, tt.wantAttempts)
		})
	}
}

func TestRunner_HandlerNotFound(t *testing.T) {
	db := setupTestDB(t)
	task, err := BuildScheduledTask("unknown", map[string]string{}, fixedNow, nil, models.ScheduledTaskTypeOneTime, 3)
	require.NoError(t, err)
	require.NoError(t, db.Create(task).Error)

	newTestRunner(db, NewRegistry()).Execute(context.Background(), *task)

	assert.Equal(t, models.ScheduledTaskStatusFailure, reload(t, db, task.ID).Status)
	rows := history(t, db, task.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, historyStatusHandlerNotFound, rows[0].Status)
}

func TestRunner_RecurringTaskAdvances(t *testing.T) {
	db := setupTestDB(t)
	registry := NewRegistry()
	DefineTasks(registry, Dependencies{})

	rule := "FREQ=HOURLY;INTERVAL=1"
	due := fixedNow.Add(-30 * time.Minute)
	task, err := BuildScheduledTask("log_info", map[string]string{"message": "heartbeat"}, due, &rule, models.ScheduledTaskTypeRecurring, 1)
	require.NoError(t, err)
	require.NoError(t, db.Create(task).Error)

	newTestRunner(db, registry).Execute(context.Background(), *task)

	stored := reload(t, db, task.ID)
	assert.Equal(t, models.ScheduledTaskStatusActive, stored.Status)
	assert.True(t, stored.Due.Equal(due.Add(time.Hour)), "got %s", stored.Due)
}

func TestRunner_RunDuePicksOnlyDueActiveTasks(t *testing.T) {
	db := setupTestDB(t)
	registry := NewRegistry()
	var (
		mu  sync.Mutex
		ran []string
	)
	registry.Register("job", func(_ context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, task.CorrelationKey)
		return nil, nil
	})

	add := func(key string, due time.Time, status models.ScheduledTaskStatus) {
		task, err := BuildScheduledTask("job", map[string]string{}, due, nil, models.ScheduledTaskTypeOneTime, 1)
		require.NoError(t, err)
		task.CorrelationKey = key
		task.Status = status
		require.NoError(t, db.Create(task).Error)
	}
	add("due", fixedNow.Add(-time.Minute), models.ScheduledTaskStatusActive)
	add("future", fixedNow.Add(time.Minute), models.ScheduledTaskStatusActive)
	add("done", fixedNow.Add(-time.Hour), models.ScheduledTaskStatusDone)

	processed := newTestRunner(db, registry).RunDue(context.Background())

	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"due"}, ran)
}

type fakeSender struct {
	mu       sync.Mutex
	fail     map[string]error
	messages map[string]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fail: map[string]error{}, messages: map[string]string{}}
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.messages[chatID] = text
	return nil
}

func (f *fakeSender) SendEmail(to []string, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to[0]]; err != nil {
		return err
	}
	f.messages[to[0]] = body
	return nil
}

func notificationFixture(t *testing.T) (*gorm.DB, *services.MemoryStore, *fakeSender, *fakeSender, *SendNotificationTaskDef) {
	t.Helper()
	db := setupTestDB(t)
	store := services.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "U1", Name: "Ana", Email: "ana@example.com", Whatsapp: "+5511987654321", Role: models.RolePatient}))
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "P1", Name: "Dr. Bruno", Email: "bruno@example.com", Role: models.RolePsychologist}))

	whatsapp, email := newFakeSender(), newFakeSender()
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	def := &SendNotificationTaskDef{deps: Dependencies{
		Store:     store,
		Scheduler: newTestScheduler(db),
		Whatsapp:  whatsapp,
		Email:     email,
		Location:  saoPaulo,
		Log:       zap.NewNop(),
	}}
	return db, store, whatsapp, email, def
}

func TestSendNotification_UsesWhatsappThenEmail(t *testing.T) {
	db, _, whatsapp, email, def := notificationFixture(t)
	s := newTestScheduler(db)
	require.NoError(t, s.ScheduleSessionNotification(context.Background(), testSession()))
	var task models.ScheduledTask
	require.NoError(t, db.First(&task).Error)

	result, err := def.HandleExecution(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, result["success"])

	// 1700000000000 ms is 2023-11-14 22:13 UTC, 19:13 in São Paulo
	assert.Equal(t, "Olá, Ana! Sua sessão com Dr. Bruno está confirmada para 14/11/2023 às 19:13. Valor pago: R$ 150,00. Até lá!",
		whatsapp.messages["+5511987654321"])
	assert.Equal(t, "Olá, Dr. Bruno! Nova sessão agendada com Ana em 14/11/2023 às 19:13.",
		email.messages["bruno@example.com"])
}

func TestSendNotification_ReschedulesFailedRecipients(t *testing.T) {
	db, _, _, email, def := notificationFixture(t)
	email.fail["bruno@example.com"] = errors.New("smtp down")

	s := newTestScheduler(db)
	require.NoError(t, s.ScheduleSessionNotification(context.Background(), testSession()))
	var task models.ScheduledTask
	require.NoError(t, db.First(&task).Error)

	result, err := def.HandleExecution(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, result["failure"])

	var retry models.ScheduledTask
	require.NoError(t, db.Where("id <> ?", task.ID).First(&retry).Error)
	assert.True(t, retry.Due.Equal(fixedNow.Add(notificationRetryDelay)))
	var args SendNotificationArgs
	require.NoError(t, decodeArgs(retry, &args))
	assert.Equal(t, 1, args.AttemptCount)
	require.Len(t, args.Recipients, 1)
	assert.Equal(t, "P1", args.Recipients[0].UserID)

	// last attempt gives up
	retry.Arguments["attempt_count"] = float64(notificationMaxAttempt - 1)
	_, err = def.HandleExecution(context.Background(), retry)
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestSendNotification_SkipsRecipientsWithoutChannel(t *testing.T) {
	db, store, _, _, def := notificationFixture(t)
	def.deps.Email = nil
	_, err := store.UpdateUser(context.Background(), "P1", func(u *models.User) error {
		u.Whatsapp = ""
		return nil
	})
	require.NoError(t, err)

	s := newTestScheduler(db)
	require.NoError(t, s.ScheduleSessionNotification(context.Background(), testSession()))
	var task models.ScheduledTask
	require.NoError(t, db.First(&task).Error)

	result, err := def.HandleExecution(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, result["success"])
	assert.Equal(t, 1, result["skipped"])
}

type fakeConfirmer struct {
	res *services.ConfirmationResult
	err error
	ids []string
}

func (f *fakeConfirmer) ConfirmPayment(_ context.Context, id string) (*services.ConfirmationResult, error) {
	f.ids = append(f.ids, id)
	return f.res, f.err
}

func TestReconcilePayment(t *testing.T) {
	task, err := BuildScheduledTask("reconcile_payment", ReconcilePaymentArgs{PaymentID: "555"}, fixedNow, nil, models.ScheduledTaskTypeOneTime, 3)
	require.NoError(t, err)

	t.Run("confirms payment", func(t *testing.T) {
		confirmer := &fakeConfirmer{res: &services.ConfirmationResult{Outcome: models.CallbackOutcomeCreated, SessionKey: "session-P1-1"}}
		def := &ReconcilePaymentTaskDef{deps: Dependencies{Payments: confirmer, Log: zap.NewNop()}}

		result, err := def.HandleExecution(context.Background(), *task)
		require.NoError(t, err)
		assert.Equal(t, []string{"555"}, confirmer.ids)
		assert.Equal(t, "created", result["outcome"])
	})

	t.Run("upstream errors are retryable", func(t *testing.T) {
		confirmer := &fakeConfirmer{err: services.UpstreamError("failed to fetch payment", errors.New("timeout"))}
		def := &ReconcilePaymentTaskDef{deps: Dependencies{Payments: confirmer, Log: zap.NewNop()}}

		_, err := def.HandleExecution(context.Background(), *task)
		require.Error(t, err)
		assert.False(t, isPermanent(err))
	})

	t.Run("validation errors are permanent", func(t *testing.T) {
		confirmer := &fakeConfirmer{err: services.ValidationError("Invalid external reference format.")}
		def := &ReconcilePaymentTaskDef{deps: Dependencies{Payments: confirmer, Log: zap.NewNop()}}

		_, err := def.HandleExecution(context.Background(), *task)
		assert.True(t, isPermanent(err))
	})
}
