package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/repositories"
)

// CleanupManager periodically removes expired step-up challenges and trims
// old login-log rows past the retention window
type CleanupManager struct {
	challenges   *repositories.StepUpRepository
	logs         *repositories.LoginLogRepository
	logger       *slog.Logger
	interval     time.Duration
	logRetention time.Duration
	stopCh       chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challenges *repositories.StepUpRepository,
	logs *repositories.LoginLogRepository,
	logger *slog.Logger,
	interval time.Duration,
	logRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challenges:   challenges,
		logs:         logs,
		logger:       logger,
		interval:     interval,
		logRetention: logRetention,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting retention cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := cm.challenges.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to delete expired challenges", slog.Any("error", err))
	} else if expired > 0 {
		cm.logger.Info("expired challenge cleanup completed", slog.Int64("rows_deleted", expired))
	}

	if cm.logRetention <= 0 {
		return
	}

	cutoff := time.Now().Add(-cm.logRetention)
	trimmed, err := cm.logs.DeleteOlderThan(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to trim login logs", slog.Any("error", err))
		return
	}
	if trimmed > 0 {
		cm.logger.Info("login log retention trim completed",
			slog.Int64("rows_deleted", trimmed),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
