package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"timeplus_app/internal/config"
	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
	"timeplus_app/internal/tasks"
)

func main() {
	// defined flags
	taskName := flag.String("task_name", "", "Name of the task (mandatory)")
	argsStr := flag.String("arguments", "", "JSON arguments for the task (mandatory)")
	dueStr := flag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04 in APP_TIMEZONE, or RFC3339)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeOneTime), "Task type (optional, default: onetime)")
	recurring := flag.String("recurring", "", "Recurring interval rule, RRULE syntax (optional)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts (optional, default: 3)")
	correlationKey := flag.String("correlation_key", "", "Correlation key (optional)")

	flag.Parse()

	// Validation
	if *taskName == "" || *argsStr == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -arguments <json_args> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := services.NewLogger(cfg.App)
	defer logger.Sync()

	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, tasks.Dependencies{Log: logger})
	if _, ok := registry.Get(*taskName); !ok {
		logger.Fatal("Unknown task name", zap.String("taskName", *taskName), zap.Strings("known", registry.Names()))
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		logger.Fatal("Invalid JSON arguments", zap.Error(err))
	}

	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, cfg.Location())
		if err != nil {
			logger.Fatal("Invalid due date format. Use '2006-01-02 15:04' or RFC3339", zap.Error(err))
		}
	}

	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due.UTC(), recurringPtr, models.ScheduledTaskType(*taskType), *maxAttempt)
	if err != nil {
		logger.Fatal("Failed to build task", zap.Error(err))
	}
	task.CorrelationKey = *correlationKey
	if task.TaskType == models.ScheduledTaskTypeRecurring {
		if recurringPtr == nil {
			logger.Fatal("Recurring tasks need -recurring")
		}
		if _, err := rrule.StrToRRule(*recurringPtr); err != nil {
			logger.Fatal("Invalid recurring rule", zap.Error(err))
		}
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect DB", zap.Error(err))
	}

	if err := tasks.NewScheduler(db).Enqueue(context.Background(), task); err != nil {
		logger.Fatal("Failed to create task", zap.Error(err))
	}

	logger.Info("Successfully created task",
		zap.Uint("taskId", task.ID),
		zap.String("taskName", task.TaskName),
		zap.Time("due", task.Due),
		zap.String("taskType", string(task.TaskType)),
	)
}
