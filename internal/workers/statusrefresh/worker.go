// Package statusrefresh periodically republishes the bot's presence line so
// prices and remaining capacity stay visible on the trading network profile.
package statusrefresh

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// StatusPublisher recomputes and publishes the presence line.
type StatusPublisher interface {
	RefreshStatus(ctx context.Context)
}

// Worker schedules periodic status refreshes. Cosmetic only.
type Worker struct {
	publisher StatusPublisher
	schedule  string
	cron      *cron.Cron
	logger    *logger.Logger
}

// NewWorker creates a new status refresh worker.
func NewWorker(publisher StatusPublisher, schedule string, logger *logger.Logger) *Worker {
	return &Worker{
		publisher: publisher,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the refresh job and starts the scheduler.
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		w.publisher.RefreshStatus(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Status refresh worker started", "schedule", w.schedule)
	return nil
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Status refresh worker stopped")
}
