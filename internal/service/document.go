// Package service implements the document and scan orchestrators. Services
// own the workflow ordering and the error taxonomy surface; persistence,
// object storage, the job coordinator and the event bus are injected.
package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/apperr"
	"docvault/internal/auth"
	"docvault/internal/events"
	"docvault/internal/jobstore"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

// downloadURLTTL is how long a presigned download link stays valid.
const downloadURLTTL = time.Hour

// UploadMeta is the caller-supplied metadata accompanying an upload.
type UploadMeta struct {
	Filename    string
	ContentType string
	Title       string
	Description string
	Tags        []string
	Attributes  map[string]string
	// SessionID links the upload to a tracked upload session, if any.
	SessionID string
}

// UploadResult is returned once an upload has durably committed.
type UploadResult struct {
	DocumentID string           `json:"document_id"`
	Status     string           `json:"status"`
	Location   storage.Location `json:"location"`
	Checksum   string           `json:"checksum"`
	SizeBytes  int64            `json:"size_bytes"`
	UploadedAt time.Time        `json:"uploaded_at"`
}

// DocumentDetail aggregates a document with its storage and scan state.
type DocumentDetail struct {
	Document   model.Document          `json:"document"`
	Location   *model.StorageLocation  `json:"location,omitempty"`
	Versions   []model.DocumentVersion `json:"versions"`
	LatestScan *model.ScanResult       `json:"latest_scan,omitempty"`
}

// ListQuery narrows and pages a document listing.
type ListQuery struct {
	OwnerID string
	Tag     string
	Status  model.DocumentStatus
	Limit   int
	Offset  int
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items   []model.Document `json:"data"`
	Total   int              `json:"total"`
	HasMore bool             `json:"has_more"`
}

// DocumentUpdate is a partial metadata update; nil fields are unchanged.
type DocumentUpdate = repository.DocumentUpdate

// ScanEnqueuer queues a document for scanning. Implemented by ScanService.
type ScanEnqueuer interface {
	Enqueue(ctx context.Context, documentID, userID, tenantID string) (string, error)
}

// DocumentService defines the document use cases. Every operation is scoped
// to the principal's tenant; non-admin principals can only act on documents
// they own.
type DocumentService interface {
	// Upload stores the content, commits all metadata in one transaction and
	// queues the document for scanning. A storage failure aborts before any
	// metadata write.
	Upload(ctx context.Context, p auth.Principal, r io.Reader, meta UploadMeta, size int64) (*UploadResult, error)

	// Get returns a document with its primary location, versions and latest
	// scan result.
	Get(ctx context.Context, p auth.Principal, id string) (*DocumentDetail, error)

	// Download returns a presigned URL for the document's primary location.
	Download(ctx context.Context, p auth.Principal, id string) (string, error)

	// List returns a page of the tenant's documents, excluding deleted ones.
	List(ctx context.Context, p auth.Principal, q ListQuery) (*DocumentListResult, error)

	// Update applies a partial metadata update.
	Update(ctx context.Context, p auth.Principal, id string, upd DocumentUpdate) (*model.Document, error)

	// Delete soft-deletes a document. The stored bytes are left in place.
	Delete(ctx context.Context, p auth.Principal, id string) error

	// AuditTrail returns a document's audit entries, newest first.
	AuditTrail(ctx context.Context, p auth.Principal, id string, limit, offset int) ([]model.AuditLog, error)

	// VerifyAccess checks that the principal may act on the document. Unlike
	// Get it loads no related state and writes no audit entry, so it suits
	// authorization gates for operations that are audited elsewhere.
	VerifyAccess(ctx context.Context, p auth.Principal, id string) error

	// CreateSession registers a tracked upload session with a TTL.
	CreateSession(ctx context.Context, p auth.Principal, filename, contentType string, expectedSize int64) (*model.UploadSession, error)

	// GetSession returns a tracked upload session, or NotFound once expired.
	GetSession(ctx context.Context, p auth.Principal, id string) (*model.UploadSession, error)
}

type documentService struct {
	docs       repository.DocumentRepository
	scans      repository.ScanRepository
	audits     repository.AuditRepository
	store      storage.Storage
	jobs       jobstore.Store
	enqueuer   ScanEnqueuer
	publisher  events.Publisher
	maxSize    int64
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(
	docs repository.DocumentRepository,
	scans repository.ScanRepository,
	audits repository.AuditRepository,
	store storage.Storage,
	jobs jobstore.Store,
	enqueuer ScanEnqueuer,
	publisher events.Publisher,
	maxSize int64,
	sessionTTL time.Duration,
	logger *zap.Logger,
) DocumentService {
	return &documentService{
		docs:       docs,
		scans:      scans,
		audits:     audits,
		store:      store,
		jobs:       jobs,
		enqueuer:   enqueuer,
		publisher:  publisher,
		maxSize:    maxSize,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

func (s *documentService) Upload(ctx context.Context, p auth.Principal, r io.Reader, meta UploadMeta, size int64) (*UploadResult, error) {
	if r == nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "no content provided")
	}
	if meta.Filename == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "filename is required")
	}
	if size <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "content size must be positive")
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, apperr.New(apperr.KindInvalidArgument, "content exceeds maximum upload size of %d bytes", s.maxSize)
	}

	docID := uuid.NewString()
	key := path.Join(p.TenantID, docID, meta.Filename)

	hasher := sha256.New()
	loc, err := s.store.Put(ctx, key, io.TeeReader(r, hasher), storage.PutObjectOptions{
		Size:        size,
		ContentType: meta.ContentType,
		Metadata:    map[string]string{"original-filename": meta.Filename},
	})
	if err != nil {
		return nil, err
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	now := time.Now().UTC()
	up := &repository.UploadRecord{
		Document: model.Document{
			ID:          docID,
			Filename:    meta.Filename,
			ContentType: meta.ContentType,
			SizeBytes:   size,
			Checksum:    checksum,
			OwnerID:     p.UserID,
			TenantID:    p.TenantID,
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			Attributes:  meta.Attributes,
			Status:      model.DocumentStatusActive,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Location: model.StorageLocation{
			ID:          uuid.NewString(),
			DocumentID:  docID,
			Backend:     loc.Backend,
			Bucket:      loc.Bucket,
			Key:         loc.Key,
			Region:      loc.Region,
			EndpointURL: loc.EndpointURL,
			IsPrimary:   true,
			CreatedAt:   now,
		},
		Version: model.DocumentVersion{
			ID:          uuid.NewString(),
			DocumentID:  docID,
			Version:     1,
			Description: "Initial version",
			SizeBytes:   size,
			Checksum:    checksum,
			Backend:     loc.Backend,
			Bucket:      loc.Bucket,
			Key:         loc.Key,
			Region:      loc.Region,
			EndpointURL: loc.EndpointURL,
			CreatedBy:   p.UserID,
			CreatedAt:   now,
		},
		Audit: model.AuditLog{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Action:     model.AuditActionUpload,
			UserID:     p.UserID,
			TenantID:   p.TenantID,
			Status:     model.AuditStatusSuccess,
			Context:    map[string]any{"filename": meta.Filename, "size_bytes": size},
			CreatedAt:  now,
		},
	}

	if _, err := s.docs.CreateWithUpload(ctx, up); err != nil {
		// The stored object is intentionally left behind: its key is unique
		// to this attempt and removal here could race a retried upload.
		s.logger.Error("upload metadata commit failed",
			zap.String("document_id", docID),
			zap.String("key", key),
			zap.Error(err))
		// No document row exists after the rollback, so the audit entry keeps
		// the id in its context instead of the FK column.
		s.insertAudit(ctx, &model.AuditLog{
			ID:           uuid.NewString(),
			Action:       model.AuditActionUpload,
			UserID:       p.UserID,
			TenantID:     p.TenantID,
			Status:       model.AuditStatusFailure,
			ErrorMessage: err.Error(),
			Context:      map[string]any{"document_id": docID, "key": key},
			CreatedAt:    time.Now().UTC(),
		})
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to save document metadata")
	}

	if meta.SessionID != "" {
		if _, err := s.jobs.DeleteUploadSession(ctx, meta.SessionID); err != nil {
			s.logger.Warn("upload session cleanup failed",
				zap.String("session_id", meta.SessionID), zap.Error(err))
		}
	}

	if _, err := s.enqueuer.Enqueue(ctx, docID, p.UserID, p.TenantID); err != nil {
		// The document is durably stored; a lost scan job is logged, not fatal.
		s.logger.Error("scan enqueue failed", zap.String("document_id", docID), zap.Error(err))
	}

	events.FireAndForget(s.publisher, func(ctx context.Context, pub events.Publisher) error {
		return pub.DocumentUploaded(ctx, model.UploadedEvent{
			DocumentID:  docID,
			Filename:    meta.Filename,
			ContentType: meta.ContentType,
			SizeBytes:   size,
			OwnerID:     p.UserID,
			TenantID:    p.TenantID,
		})
	})

	return &UploadResult{
		DocumentID: docID,
		Status:     "completed",
		Location:   loc,
		Checksum:   checksum,
		SizeBytes:  size,
		UploadedAt: now,
	}, nil
}

func (s *documentService) Get(ctx context.Context, p auth.Principal, id string) (*DocumentDetail, error) {
	doc, err := s.findOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}

	detail := &DocumentDetail{Document: *doc}

	loc, err := s.docs.FindPrimaryLocation(ctx, id)
	switch {
	case err == nil:
		detail.Location = loc
	case !errors.Is(err, sql.ErrNoRows):
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load storage location")
	}

	versions, err := s.docs.ListVersions(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load versions")
	}
	detail.Versions = versions

	scan, err := s.scans.GetLatestByDocument(ctx, id)
	switch {
	case err == nil:
		detail.LatestScan = scan
	case !errors.Is(err, sql.ErrNoRows):
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load scan result")
	}

	s.audit(ctx, p, id, model.AuditActionGet, nil)
	return detail, nil
}

func (s *documentService) Download(ctx context.Context, p auth.Principal, id string) (string, error) {
	if _, err := s.findOwned(ctx, p, id); err != nil {
		return "", err
	}

	loc, err := s.docs.FindPrimaryLocation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.New(apperr.KindNotFound, "document has no stored content")
		}
		return "", apperr.Wrap(apperr.KindInternal, err, "failed to load storage location")
	}

	url, err := s.store.Presign(ctx, storage.LocationOf(*loc), downloadURLTTL, storage.PresignGet)
	if err != nil {
		return "", err
	}

	s.audit(ctx, p, id, model.AuditActionGet, map[string]any{"download": true})
	return url, nil
}

func (s *documentService) List(ctx context.Context, p auth.Principal, q ListQuery) (*DocumentListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	filter := repository.ListFilter{OwnerID: q.OwnerID, Status: q.Status, Tag: q.Tag}
	if !p.IsAdmin() {
		filter.OwnerID = p.UserID
	}

	page, err := s.docs.List(ctx, p.TenantID, filter, repository.PageQuery{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to list documents")
	}

	return &DocumentListResult{
		Items:   page.Items,
		Total:   page.Total,
		HasMore: q.Offset+len(page.Items) < page.Total,
	}, nil
}

func (s *documentService) Update(ctx context.Context, p auth.Principal, id string, upd DocumentUpdate) (*model.Document, error) {
	existing, err := s.findOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.UpdateMetadata(ctx, p.TenantID, id, upd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		s.auditFailure(ctx, p, id, model.AuditActionUpdate, err)
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to update document")
	}

	s.audit(ctx, p, id, model.AuditActionUpdate, nil)
	changes := changedFields(upd)
	events.FireAndForget(s.publisher, func(ctx context.Context, pub events.Publisher) error {
		return pub.DocumentUpdated(ctx, model.UpdatedEvent{
			DocumentID: id,
			Filename:   existing.Filename,
			OwnerID:    existing.OwnerID,
			TenantID:   p.TenantID,
			Changes:    changes,
		})
	})
	return doc, nil
}

func (s *documentService) Delete(ctx context.Context, p auth.Principal, id string) error {
	doc, err := s.findOwned(ctx, p, id)
	if err != nil {
		return err
	}

	ok, err := s.docs.SoftDelete(ctx, p.TenantID, id)
	if err != nil {
		s.auditFailure(ctx, p, id, model.AuditActionDelete, err)
		return apperr.Wrap(apperr.KindInternal, err, "failed to delete document")
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}

	s.audit(ctx, p, id, model.AuditActionDelete, nil)
	events.FireAndForget(s.publisher, func(ctx context.Context, pub events.Publisher) error {
		return pub.DocumentDeleted(ctx, model.DeletedEvent{
			DocumentID: id,
			Filename:   doc.Filename,
			OwnerID:    doc.OwnerID,
			TenantID:   p.TenantID,
		})
	})
	return nil
}

func (s *documentService) CreateSession(ctx context.Context, p auth.Principal, filename, contentType string, expectedSize int64) (*model.UploadSession, error) {
	if filename == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "filename is required")
	}
	if expectedSize <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "expected size must be positive")
	}
	if s.maxSize > 0 && expectedSize > s.maxSize {
		return nil, apperr.New(apperr.KindInvalidArgument, "expected size exceeds maximum upload size of %d bytes", s.maxSize)
	}

	now := time.Now().UTC()
	session := model.UploadSession{
		SessionID:    uuid.NewString(),
		UserID:       p.UserID,
		TenantID:     p.TenantID,
		Filename:     filename,
		ContentType:  contentType,
		ExpectedSize: expectedSize,
		Status:       model.UploadSessionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.CreateUploadSession(ctx, session, s.sessionTTL); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *documentService) GetSession(ctx context.Context, p auth.Principal, id string) (*model.UploadSession, error) {
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "session id is required")
	}
	session, err := s.jobs.GetUploadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.TenantID != p.TenantID {
		return nil, apperr.New(apperr.KindNotFound, "upload session not found")
	}
	return session, nil
}

func (s *documentService) AuditTrail(ctx context.Context, p auth.Principal, id string, limit, offset int) ([]model.AuditLog, error) {
	if _, err := s.findOwned(ctx, p, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.audits.ListByDocument(ctx, id, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load audit trail")
	}
	return entries, nil
}

func (s *documentService) VerifyAccess(ctx context.Context, p auth.Principal, id string) error {
	_, err := s.findOwned(ctx, p, id)
	return err
}

// findOwned loads a tenant's document and enforces the ownership rule:
// non-admin principals may only act on their own documents.
func (s *documentService) findOwned(ctx context.Context, p auth.Principal, id string) (*model.Document, error) {
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "document id is required")
	}
	doc, err := s.docs.FindByID(ctx, p.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load document")
	}
	if doc.OwnerID != p.UserID && !p.IsAdmin() {
		return nil, apperr.New(apperr.KindPermissionDenied, "not allowed to access this document")
	}
	return doc, nil
}

// audit appends a success entry; failures to write the audit row are logged
// and never fail the operation that succeeded.
func (s *documentService) audit(ctx context.Context, p auth.Principal, docID string, action model.AuditAction, auditCtx map[string]any) {
	entry := &model.AuditLog{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Action:     action,
		UserID:     p.UserID,
		TenantID:   p.TenantID,
		Status:     model.AuditStatusSuccess,
		Context:    auditCtx,
		CreatedAt:  time.Now().UTC(),
	}
	s.insertAudit(ctx, entry)
}

func (s *documentService) auditFailure(ctx context.Context, p auth.Principal, docID string, action model.AuditAction, cause error) {
	s.insertAudit(ctx, &model.AuditLog{
		ID:           uuid.NewString(),
		DocumentID:   docID,
		Action:       action,
		UserID:       p.UserID,
		TenantID:     p.TenantID,
		Status:       model.AuditStatusFailure,
		ErrorMessage: cause.Error(),
		CreatedAt:    time.Now().UTC(),
	})
}

// changedFields names the fields a partial update touches, for the event
// payload.
func changedFields(upd DocumentUpdate) []string {
	var fields []string
	if upd.Title != nil {
		fields = append(fields, "title")
	}
	if upd.Description != nil {
		fields = append(fields, "description")
	}
	if upd.Tags != nil {
		fields = append(fields, "tags")
	}
	if upd.Attributes != nil {
		fields = append(fields, "attributes")
	}
	if upd.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

func (s *documentService) insertAudit(ctx context.Context, entry *model.AuditLog) {
	if err := s.audits.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", string(entry.Action)),
			zap.String("document_id", entry.DocumentID),
			zap.Error(err))
	}
}
