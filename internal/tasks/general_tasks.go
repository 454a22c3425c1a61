package tasks

import (
	"context"

	"go.uber.org/zap"

	"timeplus_app/internal/models"
)

// LogInfoTaskDef writes its message argument to the worker log. Useful as a
// recurring heartbeat.
type LogInfoTaskDef struct {
	log *zap.Logger
}

func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	t.log.Info("task log_info", zap.Uint("taskId", task.ID), zap.String("message", message))

	return map[string]interface{}{
		"status":            "success",
		"message":           message,
		"max_attempts_info": task.MaxAttempt,
	}, nil
}
