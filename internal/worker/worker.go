// Package worker runs the scan consumer loop: it drains the scan queue and
// hands each job to the scan orchestrator.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"docvault/internal/jobstore"
	"docvault/internal/service"
)

// Config holds the worker settings.
type Config struct {
	// DequeueTimeout bounds each blocking pop so the loop can observe
	// cancellation.
	DequeueTimeout time.Duration
	// ProcessTimeout bounds one job end to end, storage fetch and result
	// writes included, so a stalled backend cannot wedge the loop.
	ProcessTimeout time.Duration
}

// ScanWorker consumes scan jobs until its context is cancelled.
type ScanWorker struct {
	jobs           jobstore.Store
	scans          service.ScanService
	timeout        time.Duration
	processTimeout time.Duration
	logger         *zap.Logger
}

// New constructs a ScanWorker.
func New(jobs jobstore.Store, scans service.ScanService, cfg Config, logger *zap.Logger) *ScanWorker {
	timeout := cfg.DequeueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	processTimeout := cfg.ProcessTimeout
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	return &ScanWorker{
		jobs:           jobs,
		scans:          scans,
		timeout:        timeout,
		processTimeout: processTimeout,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled. A job in flight when cancellation
// arrives is finished before Run returns; there is no redelivery for jobs
// that fail mid-processing.
func (w *ScanWorker) Run(ctx context.Context) error {
	w.logger.Info("scan worker started", zap.Duration("dequeue_timeout", w.timeout))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scan worker stopping")
			return ctx.Err()
		default:
		}

		scanID, err := w.jobs.DequeueScanJob(ctx, w.timeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("scan worker stopping")
				return ctx.Err()
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			// Back off briefly so a dead store does not spin the loop.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.timeout):
			}
			continue
		}
		if scanID == "" {
			continue
		}

		// Processing runs detached from ctx so an in-flight scan is not cut
		// off by shutdown, but with its own deadline so a stalled backend
		// cannot block the loop forever.
		jobCtx, cancel := context.WithTimeout(context.Background(), w.processTimeout)
		if err := w.scans.Process(jobCtx, scanID); err != nil {
			w.logger.Error("scan processing failed",
				zap.String("scan_id", scanID),
				zap.Error(err))
		}
		cancel()
	}
}
