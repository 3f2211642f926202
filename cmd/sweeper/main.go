// Package main provides the recurring credit sweeper entry point. It runs
// one bounded sweep and exits, suitable for cron or a scheduled job runner.
package main

import (
	"context"
	"time"

	"github.com/pagent-credits/backend/internal/config"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/service"
	"github.com/pagent-credits/backend/internal/storage"
)

const sweepTimeout = 5 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	recurringRepo := storage.NewRecurringRepository(postgres)
	permissionRepo := storage.NewPermissionRepository(postgres)
	assignmentRepo := storage.NewAssignmentRepository(postgres)

	sweeper := service.NewSweeperService(recurringRepo, permissionRepo, assignmentRepo)

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := sweeper.SweepDue(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Sweep failed")
	}

	logger.WithFields(map[string]interface{}{
		"due":      report.Due,
		"assigned": report.Assigned,
		"failed":   report.Failed,
	}).Info("Sweep finished")
}
