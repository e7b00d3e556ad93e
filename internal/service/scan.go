package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/apperr"
	"docvault/internal/events"
	"docvault/internal/jobstore"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/scanner"
	"docvault/internal/storage"
)

// threatDescriptionPrefix prefixes every threat description persisted for an
// infected scan.
const threatDescriptionPrefix = "Threat detected: "

// VirusScanner streams content to the scanning daemon. Implemented by
// scanner.Client.
type VirusScanner interface {
	Scan(ctx context.Context, r io.Reader) scanner.Outcome
}

// ScanService drives a scan job from pending to its terminal state.
type ScanService interface {
	ScanEnqueuer

	// Process runs one dequeued scan job to completion. A missing job record
	// means the job is lost: it is logged and dropped, never retried. The
	// returned error covers infrastructure failures only; a scan that ends in
	// result "error" is a processed job, not a failed call.
	Process(ctx context.Context, scanID string) error

	// GetJob returns the coordinator-side job record, or NotFound once the
	// record expired.
	GetJob(ctx context.Context, scanID string) (*model.ScanJobRecord, error)
}

type scanService struct {
	jobs      jobstore.Store
	docs      repository.DocumentRepository
	scans     repository.ScanRepository
	audits    repository.AuditRepository
	store     storage.Storage
	scanner   VirusScanner
	publisher events.Publisher
	jobTTL    time.Duration
	logger    *zap.Logger
}

// NewScanService constructs a ScanService.
func NewScanService(
	jobs jobstore.Store,
	docs repository.DocumentRepository,
	scans repository.ScanRepository,
	audits repository.AuditRepository,
	store storage.Storage,
	vs VirusScanner,
	publisher events.Publisher,
	jobTTL time.Duration,
	logger *zap.Logger,
) ScanService {
	return &scanService{
		jobs:      jobs,
		docs:      docs,
		scans:     scans,
		audits:    audits,
		store:     store,
		scanner:   vs,
		publisher: publisher,
		jobTTL:    jobTTL,
		logger:    logger,
	}
}

// Enqueue creates a pending job record and pushes it onto the scan queue.
func (s *scanService) Enqueue(ctx context.Context, documentID, userID, tenantID string) (string, error) {
	if documentID == "" {
		return "", apperr.New(apperr.KindInvalidArgument, "document id is required")
	}

	now := time.Now().UTC()
	job := model.ScanJobRecord{
		ScanID:     uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		TenantID:   tenantID,
		Status:     model.ScanStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.CreateScanJob(ctx, job, s.jobTTL); err != nil {
		return "", err
	}

	s.logger.Info("scan job enqueued",
		zap.String("scan_id", job.ScanID),
		zap.String("document_id", documentID))
	return job.ScanID, nil
}

func (s *scanService) GetJob(ctx context.Context, scanID string) (*model.ScanJobRecord, error) {
	if scanID == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "scan id is required")
	}
	job, err := s.jobs.GetScanJob(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.New(apperr.KindNotFound, "scan job not found")
	}
	return job, nil
}

func (s *scanService) Process(ctx context.Context, scanID string) error {
	job, err := s.jobs.GetScanJob(ctx, scanID)
	if err != nil {
		return err
	}
	if job == nil {
		s.logger.Warn("scan job record missing, dropping job", zap.String("scan_id", scanID))
		return nil
	}
	if job.Status.Terminal() {
		s.logger.Warn("scan job already terminal, dropping job",
			zap.String("scan_id", scanID),
			zap.String("status", string(job.Status)))
		return nil
	}

	started := time.Now().UTC()

	loc, err := s.docs.FindPrimaryLocation(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Terminal without ever contacting the scanner.
			return s.finish(ctx, job, &model.ScanResult{
				ID:           job.ScanID,
				DocumentID:   job.DocumentID,
				Status:       model.ScanStatusFailed,
				Result:       model.ScanResultError,
				ErrorMessage: "no primary storage location",
				StartedAt:    started,
				CompletedAt:  time.Now().UTC(),
			})
		}
		return apperr.Wrap(apperr.KindInternal, err, "failed to load storage location")
	}

	s.markScanning(ctx, job.ScanID)

	content, info, err := s.store.GetStream(ctx, storage.LocationOf(*loc))
	if err != nil {
		return s.finish(ctx, job, &model.ScanResult{
			ID:           job.ScanID,
			DocumentID:   job.DocumentID,
			Status:       model.ScanStatusFailed,
			Result:       model.ScanResultError,
			ErrorMessage: "failed to fetch content: " + apperr.Message(err),
			StartedAt:    started,
			CompletedAt:  time.Now().UTC(),
		})
	}
	defer content.Close()

	s.logger.Info("scanning document",
		zap.String("scan_id", job.ScanID),
		zap.String("document_id", job.DocumentID),
		zap.Int64("size_bytes", info.Size))

	outcome := s.scanner.Scan(ctx, content)
	return s.finish(ctx, job, resultOf(job, outcome, started))
}

// resultOf maps a protocol outcome to the persisted scan result.
func resultOf(job *model.ScanJobRecord, out scanner.Outcome, started time.Time) *model.ScanResult {
	res := &model.ScanResult{
		ID:             job.ScanID,
		DocumentID:     job.DocumentID,
		ScannerVersion: out.Version,
		DurationMS:     out.Duration.Milliseconds(),
		StartedAt:      started,
		CompletedAt:    time.Now().UTC(),
	}

	switch out.Class {
	case scanner.ClassClean:
		res.Status = model.ScanStatusCompleted
		res.Result = model.ScanResultClean
	case scanner.ClassInfected:
		res.Status = model.ScanStatusCompleted
		res.Result = model.ScanResultInfected
		res.Threats = []model.ThreatDetail{{
			ID:          uuid.NewString(),
			ScanID:      job.ScanID,
			Name:        out.ThreatName,
			Type:        "virus",
			Severity:    model.SeverityHigh,
			Description: threatDescriptionPrefix + out.ThreatName,
		}}
	default:
		// Ambiguous or failed scans are never reported clean.
		res.Status = model.ScanStatusFailed
		res.Result = model.ScanResultError
		res.ErrorMessage = out.Raw
	}
	return res
}

// finish persists the terminal result, closes out the job record, audits the
// scan and announces it.
func (s *scanService) finish(ctx context.Context, job *model.ScanJobRecord, res *model.ScanResult) error {
	if _, err := s.scans.CreateResult(ctx, res); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "failed to persist scan result")
	}

	patch := jobstore.ScanJobPatch{
		Status:     &res.Status,
		Result:     &res.Result,
		Threats:    res.Threats,
		DurationMS: &res.DurationMS,
	}
	if res.ErrorMessage != "" {
		patch.ErrorMessage = &res.ErrorMessage
	}
	if ok, err := s.jobs.UpdateScanJob(ctx, job.ScanID, patch); err != nil {
		s.logger.Warn("scan job record update failed", zap.String("scan_id", job.ScanID), zap.Error(err))
	} else if !ok {
		s.logger.Warn("scan job record expired before completion", zap.String("scan_id", job.ScanID))
	}

	s.auditScan(ctx, job, res)

	events.FireAndForget(s.publisher, func(ctx context.Context, pub events.Publisher) error {
		return pub.DocumentScanned(ctx, model.ScannedEvent{
			DocumentID: job.DocumentID,
			ScanID:     job.ScanID,
			Result:     res.Result,
			Threats:    res.Threats,
			TenantID:   job.TenantID,
		})
	})

	s.logger.Info("scan finished",
		zap.String("scan_id", job.ScanID),
		zap.String("document_id", job.DocumentID),
		zap.String("result", string(res.Result)),
		zap.Int64("duration_ms", res.DurationMS))
	return nil
}

// markScanning moves the job record to scanning. An expired record does not
// stop the scan; the durable result is still written.
func (s *scanService) markScanning(ctx context.Context, scanID string) {
	scanning := model.ScanStatusScanning
	if ok, err := s.jobs.UpdateScanJob(ctx, scanID, jobstore.ScanJobPatch{Status: &scanning}); err != nil {
		s.logger.Warn("scan job record update failed", zap.String("scan_id", scanID), zap.Error(err))
	} else if !ok {
		s.logger.Warn("scan job record expired mid-flight", zap.String("scan_id", scanID))
	}
}

func (s *scanService) auditScan(ctx context.Context, job *model.ScanJobRecord, res *model.ScanResult) {
	status := model.AuditStatusSuccess
	if res.Result == model.ScanResultError {
		status = model.AuditStatusFailure
	}
	entry := &model.AuditLog{
		ID:           uuid.NewString(),
		DocumentID:   job.DocumentID,
		Action:       model.AuditActionScan,
		UserID:       job.UserID,
		TenantID:     job.TenantID,
		Status:       status,
		ErrorMessage: res.ErrorMessage,
		Context:      map[string]any{"scan_id": job.ScanID, "result": string(res.Result)},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.audits.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", string(model.AuditActionScan)),
			zap.String("document_id", job.DocumentID),
			zap.Error(err))
	}
}
