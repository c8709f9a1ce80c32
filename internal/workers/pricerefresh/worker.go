// Package pricerefresh keeps the price oracle current on a cron schedule.
package pricerefresh

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// Refresher re-fetches the exchange rate.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Worker schedules periodic price refreshes.
type Worker struct {
	refresher Refresher
	schedule  string
	cron      *cron.Cron
	logger    *logger.Logger
}

// NewWorker creates a new price refresh worker.
func NewWorker(refresher Refresher, schedule string, logger *logger.Logger) *Worker {
	return &Worker{
		refresher: refresher,
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

		if err := w.refresher.Refresh(ctx); err != nil {
			w.logger.Error("Failed to refresh exchange rate", "error", err)
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Price refresh worker started", "schedule", w.schedule)
	return nil
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Price refresh worker stopped")
}
