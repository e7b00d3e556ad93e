package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"docvault/internal/apperr"
	"docvault/internal/events"
	"docvault/internal/jobstore"
	jobmocks "docvault/internal/jobstore/mocks"
	"docvault/internal/model"
	repomocks "docvault/internal/repository/mocks"
	"docvault/internal/scanner"
	"docvault/internal/storage"
	storagemocks "docvault/internal/storage/mocks"
)

type stubScanner struct {
	outcome scanner.Outcome
	calls   int
}

func (s *stubScanner) Scan(ctx context.Context, r io.Reader) scanner.Outcome {
	s.calls++
	io.Copy(io.Discard, r)
	return s.outcome
}

type scanServiceFixture struct {
	jobs    *jobmocks.MockStore
	docs    *repomocks.MockDocumentRepository
	scans   *repomocks.MockScanRepository
	audits  *repomocks.MockAuditRepository
	store   *storagemocks.MockStorage
	scanner *stubScanner
	svc     ScanService
}

func newScanServiceFixture(t *testing.T, outcome scanner.Outcome) *scanServiceFixture {
	t.Helper()
	f := &scanServiceFixture{
		jobs:    new(jobmocks.MockStore),
		docs:    new(repomocks.MockDocumentRepository),
		scans:   new(repomocks.MockScanRepository),
		audits:  new(repomocks.MockAuditRepository),
		store:   new(storagemocks.MockStorage),
		scanner: &stubScanner{outcome: outcome},
	}
	f.svc = NewScanService(
		f.jobs, f.docs, f.scans, f.audits, f.store, f.scanner,
		events.NopPublisher{}, 30*time.Minute, zap.NewNop(),
	)
	return f
}

func pendingJob() *model.ScanJobRecord {
	return &model.ScanJobRecord{
		ScanID:     "scan-1",
		DocumentID: "doc-1",
		UserID:     "user-1",
		TenantID:   "tenant-1",
		Status:     model.ScanStatusPending,
	}
}

func (f *scanServiceFixture) expectHappyInfra() {
	f.docs.On("FindPrimaryLocation", mock.Anything, "doc-1").
		Return(&model.StorageLocation{Bucket: "documents", Key: "tenant-1/doc-1/a.txt"}, nil)
	f.jobs.On("UpdateScanJob", mock.Anything, "scan-1", mock.Anything).Return(true, nil)
	f.store.On("GetStream", mock.Anything, mock.Anything).
		Return(io.NopCloser(strings.NewReader("content")), storage.ObjectInfo{Size: 7}, nil)
	f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)
}

func TestScanService_Enqueue(t *testing.T) {
	f := newScanServiceFixture(t, scanner.Outcome{})

	var created model.ScanJobRecord
	var ttl time.Duration
	f.jobs.On("CreateScanJob", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(model.ScanJobRecord)
			ttl = args.Get(2).(time.Duration)
		}).
		Return(nil)

	scanID, err := f.svc.Enqueue(context.Background(), "doc-1", "user-1", "tenant-1")

	assert.NoError(t, err)
	assert.Equal(t, scanID, created.ScanID)
	assert.Equal(t, model.ScanStatusPending, created.Status)
	assert.Equal(t, 30*time.Minute, ttl)
}

func TestScanService_Process(t *testing.T) {
	t.Run("clean outcome completes the job", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{
			Class:    scanner.ClassClean,
			Version:  "ClamAV 1.3.0",
			Duration: 120 * time.Millisecond,
		})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.expectHappyInfra()

		var stored *model.ScanResult
		f.scans.On("CreateResult", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.ScanResult) }).
			Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Equal(t, model.ScanStatusCompleted, stored.Status)
		assert.Equal(t, model.ScanResultClean, stored.Result)
		assert.Empty(t, stored.Threats)
		assert.Equal(t, "ClamAV 1.3.0", stored.ScannerVersion)
		assert.Equal(t, int64(120), stored.DurationMS)
	})

	t.Run("infected outcome records the threat", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{
			Class:      scanner.ClassInfected,
			ThreatName: "Eicar-Test-Signature",
		})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.expectHappyInfra()

		var stored *model.ScanResult
		f.scans.On("CreateResult", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.ScanResult) }).
			Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Equal(t, model.ScanStatusCompleted, stored.Status)
		assert.Equal(t, model.ScanResultInfected, stored.Result)
		assert.Len(t, stored.Threats, 1)
		threat := stored.Threats[0]
		assert.Equal(t, "Eicar-Test-Signature", threat.Name)
		assert.Equal(t, "virus", threat.Type)
		assert.Equal(t, model.SeverityHigh, threat.Severity)
		assert.Equal(t, "Threat detected: Eicar-Test-Signature", threat.Description)
	})

	t.Run("scanner error is a failed result, never clean", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{
			Class: scanner.ClassError,
			Raw:   "connect: connection refused",
		})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.expectHappyInfra()

		var stored *model.ScanResult
		f.scans.On("CreateResult", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.ScanResult) }).
			Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Equal(t, model.ScanStatusFailed, stored.Status)
		assert.Equal(t, model.ScanResultError, stored.Result)
		assert.Equal(t, "connect: connection refused", stored.ErrorMessage)
	})

	t.Run("missing job record is dropped quietly", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{})
		f.jobs.On("GetScanJob", mock.Anything, "scan-gone").Return(nil, nil)

		err := f.svc.Process(context.Background(), "scan-gone")

		assert.NoError(t, err)
		assert.Zero(t, f.scanner.calls)
		f.scans.AssertNotCalled(t, "CreateResult")
	})

	t.Run("terminal job is not reprocessed", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{})
		job := pendingJob()
		job.Status = model.ScanStatusCompleted
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(job, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Zero(t, f.scanner.calls)
		f.scans.AssertNotCalled(t, "CreateResult")
	})

	t.Run("no primary location fails terminally without scanning", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.docs.On("FindPrimaryLocation", mock.Anything, "doc-1").Return(nil, sql.ErrNoRows)
		f.jobs.On("UpdateScanJob", mock.Anything, "scan-1", mock.Anything).Return(true, nil)
		f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)

		var stored *model.ScanResult
		f.scans.On("CreateResult", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.ScanResult) }).
			Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Zero(t, f.scanner.calls)
		f.store.AssertNotCalled(t, "GetStream")
		assert.Equal(t, model.ScanStatusFailed, stored.Status)
		assert.Equal(t, model.ScanResultError, stored.Result)
		assert.Equal(t, "no primary storage location", stored.ErrorMessage)
	})

	t.Run("content fetch failure fails terminally", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.docs.On("FindPrimaryLocation", mock.Anything, "doc-1").
			Return(&model.StorageLocation{Bucket: "documents", Key: "k"}, nil)
		f.jobs.On("UpdateScanJob", mock.Anything, "scan-1", mock.Anything).Return(true, nil)
		f.store.On("GetStream", mock.Anything, mock.Anything).
			Return(nil, storage.ObjectInfo{}, apperr.New(apperr.KindUnavailable, "storage backend unavailable"))
		f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)

		var stored *model.ScanResult
		f.scans.On("CreateResult", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.ScanResult) }).
			Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		assert.Zero(t, f.scanner.calls)
		assert.Equal(t, model.ScanResultError, stored.Result)
		assert.Contains(t, stored.ErrorMessage, "failed to fetch content")
	})

	t.Run("terminal job record patch carries the result", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{Class: scanner.ClassClean})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.docs.On("FindPrimaryLocation", mock.Anything, "doc-1").
			Return(&model.StorageLocation{Bucket: "documents", Key: "k"}, nil)
		f.store.On("GetStream", mock.Anything, mock.Anything).
			Return(io.NopCloser(strings.NewReader("content")), storage.ObjectInfo{}, nil)
		f.scans.On("CreateResult", mock.Anything, mock.Anything).Return(&model.ScanResult{}, nil)
		f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)

		var patches []jobstore.ScanJobPatch
		f.jobs.On("UpdateScanJob", mock.Anything, "scan-1", mock.Anything).
			Run(func(args mock.Arguments) { patches = append(patches, args.Get(2).(jobstore.ScanJobPatch)) }).
			Return(true, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		// First patch moves to scanning, the second to the terminal state.
		assert.Len(t, patches, 2)
		assert.Equal(t, model.ScanStatusScanning, *patches[0].Status)
		assert.Equal(t, model.ScanStatusCompleted, *patches[1].Status)
		assert.Equal(t, model.ScanResultClean, *patches[1].Result)
	})

	t.Run("expired record mid-flight still persists the result", func(t *testing.T) {
		f := newScanServiceFixture(t, scanner.Outcome{Class: scanner.ClassClean})
		f.jobs.On("GetScanJob", mock.Anything, "scan-1").Return(pendingJob(), nil)
		f.docs.On("FindPrimaryLocation", mock.Anything, "doc-1").
			Return(&model.StorageLocation{Bucket: "documents", Key: "k"}, nil)
		f.jobs.On("UpdateScanJob", mock.Anything, "scan-1", mock.Anything).Return(false, nil)
		f.store.On("GetStream", mock.Anything, mock.Anything).
			Return(io.NopCloser(strings.NewReader("content")), storage.ObjectInfo{}, nil)
		f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)
		f.scans.On("CreateResult", mock.Anything, mock.Anything).Return(&model.ScanResult{}, nil)

		err := f.svc.Process(context.Background(), "scan-1")

		assert.NoError(t, err)
		f.scans.AssertCalled(t, "CreateResult", mock.Anything, mock.Anything)
	})
}
