package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	jobmocks "docvault/internal/jobstore/mocks"
	servicemocks "docvault/internal/service/mocks"
)

func TestScanWorker_ProcessesDequeuedJobs(t *testing.T) {
	jobs := new(jobmocks.MockStore)
	scans := new(servicemocks.MockScanService)

	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var processed []string

	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("scan-1", nil).Once()
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("scan-2", nil).Once()
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("", nil).Run(func(mock.Arguments) {
		cancel()
	})
	scans.On("Process", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		processed = append(processed, args.String(1))
		mu.Unlock()
	}).Return(nil)

	w := New(jobs, scans, Config{DequeueTimeout: 10 * time.Millisecond}, zap.NewNop())
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"scan-1", "scan-2"}, processed)
}

func TestScanWorker_EmptyQueueKeepsPolling(t *testing.T) {
	jobs := new(jobmocks.MockStore)
	scans := new(servicemocks.MockScanService)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("", nil).Run(func(mock.Arguments) {
		calls++
		if calls >= 3 {
			cancel()
		}
	})

	w := New(jobs, scans, Config{DequeueTimeout: 10 * time.Millisecond}, zap.NewNop())
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 3)
	scans.AssertNotCalled(t, "Process")
}

func TestScanWorker_JobContextCarriesDeadline(t *testing.T) {
	jobs := new(jobmocks.MockStore)
	scans := new(servicemocks.MockScanService)

	ctx, cancel := context.WithCancel(context.Background())

	var jobCtx context.Context
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("scan-1", nil).Once()
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("", nil).Run(func(mock.Arguments) {
		cancel()
	})
	scans.On("Process", mock.Anything, "scan-1").Run(func(args mock.Arguments) {
		jobCtx = args.Get(0).(context.Context)
	}).Return(nil)

	w := New(jobs, scans, Config{
		DequeueTimeout: 10 * time.Millisecond,
		ProcessTimeout: 90 * time.Second,
	}, zap.NewNop())
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	deadline, ok := jobCtx.Deadline()
	assert.True(t, ok, "each job must run under a deadline")
	assert.WithinDuration(t, time.Now().Add(90*time.Second), deadline, 5*time.Second)
}

func TestScanWorker_JobOutlivesShutdownContext(t *testing.T) {
	jobs := new(jobmocks.MockStore)
	scans := new(servicemocks.MockScanService)

	ctx, cancel := context.WithCancel(context.Background())

	var jobCtxErr error
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("scan-1", nil).Once()
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("", nil).Run(func(mock.Arguments) {
		cancel()
	})
	scans.On("Process", mock.Anything, "scan-1").Run(func(args mock.Arguments) {
		// Cancelling the run context mid-job must not cancel the job.
		cancel()
		jobCtxErr = args.Get(0).(context.Context).Err()
	}).Return(nil)

	w := New(jobs, scans, Config{DequeueTimeout: 10 * time.Millisecond}, zap.NewNop())
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, jobCtxErr)
}

func TestScanWorker_ProcessingErrorDoesNotStopLoop(t *testing.T) {
	jobs := new(jobmocks.MockStore)
	scans := new(servicemocks.MockScanService)

	ctx, cancel := context.WithCancel(context.Background())

	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("scan-bad", nil).Once()
	jobs.On("DequeueScanJob", mock.Anything, mock.Anything).Return("", nil).Run(func(mock.Arguments) {
		cancel()
	})
	scans.On("Process", mock.Anything, "scan-bad").Return(errors.New("database gone"))

	w := New(jobs, scans, Config{DequeueTimeout: 10 * time.Millisecond}, zap.NewNop())
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	scans.AssertCalled(t, "Process", mock.Anything, "scan-bad")
}
