package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"timeplus_app/internal/models"
)

const (
	historyStatusSuccess         = "success"
	historyStatusFailure         = "failure"
	historyStatusHandlerNotFound = "handler_not_found"

	defaultRetryBackoff = 2 * time.Second
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that must not be retried within the
// current run.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Runner executes due scheduled tasks with the handlers of a Registry.
type Runner struct {
	db           *gorm.DB
	registry     *Registry
	log          *zap.Logger
	now          func() time.Time
	retryBackoff time.Duration
}

func NewRunner(db *gorm.DB, registry *Registry, log *zap.Logger) *Runner {
	return &Runner{
		db:           db,
		registry:     registry,
		log:          log,
		now:          time.Now,
		retryBackoff: defaultRetryBackoff,
	}
}

// Start runs due tasks immediately and then on every tick until ctx is done.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunDue(ctx)
	for {
		select {
		case <-ticker.C:
			r.RunDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunDue executes every active task whose due time has passed and returns
// how many were processed.
func (r *Runner) RunDue(ctx context.Context) int {
	var pendingTasks []models.ScheduledTask
	now := r.now().UTC()
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due asc").
		Find(&pendingTasks).Error
	if err != nil {
		r.log.Error("runner error fetching pending tasks", zap.Error(err))
		return 0
	}
	if len(pendingTasks) == 0 {
		r.log.Debug("runner no pending tasks")
		return 0
	}

	r.log.Info("runner found pending tasks", zap.Int("count", len(pendingTasks)))
	processed := 0
	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			break
		}
		r.Execute(ctx, task)
		processed++
	}
	return processed
}

// Execute runs task, retrying failures up to MaxAttempt times, stores one
// history row per attempt and updates the task status.
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) {
	logger := r.log.With(zap.Uint("taskId", task.ID), zap.String("taskName", task.TaskName))
	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}
	task.Arguments[argMaxAttempt] = task.MaxAttempt

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		logger.Warn("runner task handler not found, marking as failure")
		now := r.now().UTC()
		r.saveHistory(ctx, task, now, 0, historyStatusHandlerNotFound, 1, map[string]interface{}{"error": "Handler not found"})
		r.updateTask(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		return
	}

	var (
		attempt  int
		firstRun time.Time
		runErr   error
	)
	backoff := retry.WithMaxRetries(uint64(maxAttemptOf(task)-1), retry.NewConstant(r.retryBackoff))
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		startTime := r.now().UTC()
		if attempt == 1 {
			firstRun = startTime
		}

		var result map[string]interface{}
		result, runErr = handler(ctx, task)
		runtime := r.now().Sub(startTime)

		if runErr != nil {
			logger.Warn("runner task attempt failed", zap.Int("attempt", attempt), zap.Error(runErr))
			data := map[string]interface{}{"error": runErr.Error()}
			for k, v := range result {
				if k != "error" {
					data[k] = v
				}
			}
			r.saveHistory(ctx, task, startTime, runtime, historyStatusFailure, attempt, data)
			if isPermanent(runErr) {
				return runErr
			}
			return retry.RetryableError(runErr)
		}

		r.saveHistory(ctx, task, startTime, runtime, historyStatusSuccess, attempt, result)
		return nil
	})

	updates := map[string]interface{}{"last_run": &firstRun}
	if runErr != nil {
		logger.Error("runner task failed", zap.Int("attempts", attempt), zap.Error(runErr))
		updates["status"] = models.ScheduledTaskStatusFailure
		r.updateTask(ctx, task, updates)
		return
	}

	logger.Info("runner task completed", zap.Int("attempts", attempt))
	switch task.TaskType {
	case models.ScheduledTaskTypeRecurring:
		nextDue := task.NextDueAfter(r.now())
		// a recurrence that does not move forward would run forever
		if nextDue.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = nextDue.UTC()
		} else {
			updates["status"] = models.ScheduledTaskStatusDone
		}
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}
	r.updateTask(ctx, task, updates)
}

func (r *Runner) saveHistory(ctx context.Context, task models.ScheduledTask, runAt time.Time, runtime time.Duration, status string, attempt int, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		RuntimeMs:       int(runtime.Milliseconds()),
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := r.db.WithContext(ctx).Create(&history).Error; err != nil {
		r.log.Error("runner failed to save task history", zap.Uint("taskId", task.ID), zap.Error(err))
	}
}

func (r *Runner) updateTask(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) {
	if err := r.db.WithContext(ctx).Model(&task).Updates(updates).Error; err != nil {
		r.log.Error("runner failed to update task", zap.Uint("taskId", task.ID), zap.Error(err))
	}
}
